// Package tcc holds the core vocabulary of the Try-Confirm-Cancel protocol:
// phase statuses, transaction types, propagation policies, and the Context
// record carried across process boundaries.
package tcc

import "fmt"

// Status is the phase a transaction is in. It advances monotonically from
// Trying to either Confirming or Cancelling; the terminal state is the
// absence of the record after a successful phase.
type Status uint8

const (
	// Trying means the try phase is in progress.
	Trying Status = iota + 1
	// Confirming means the transaction is committed to confirming all participants.
	Confirming
	// Cancelling means the transaction is committed to cancelling all participants.
	Cancelling
)

// Valid reports whether s is one of the three protocol statuses.
func (s Status) Valid() bool {
	return s >= Trying && s <= Cancelling
}

func (s Status) String() string {
	switch s {
	case Trying:
		return "trying"
	case Confirming:
		return "confirming"
	case Cancelling:
		return "cancelling"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStatus converts the persisted string form back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "trying":
		return Trying, nil
	case "confirming":
		return Confirming, nil
	case "cancelling":
		return Cancelling, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// TransactionType distinguishes the initiator's transaction from the
// branches created by providers sharing its global identifier.
type TransactionType uint8

const (
	// Root is the transaction created at the initiator of a call chain.
	Root TransactionType = iota + 1
	// Branch is a transaction created by a provider for an inbound Context.
	Branch
)

func (t TransactionType) String() string {
	switch t {
	case Root:
		return "root"
	case Branch:
		return "branch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Propagation controls how an intercepted call relates to an ambient
// transaction.
type Propagation uint8

const (
	// Required joins the active transaction, or opens a new one when there
	// is neither an active transaction nor an inbound context.
	Required Propagation = iota
	// RequiresNew always opens a new root transaction.
	RequiresNew
	// Mandatory requires an active transaction or an inbound context and
	// fails loudly when neither is present.
	Mandatory
)

func (p Propagation) String() string {
	switch p {
	case Required:
		return "required"
	case RequiresNew:
		return "requires_new"
	case Mandatory:
		return "mandatory"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}
