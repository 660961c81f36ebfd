package transaction

import (
	"github.com/gofrs/uuid/v5"
)

// Participant is one party's pair of confirm and cancel invocation
// descriptors, enlisted into a transaction during its try phase. Once
// enlisted a participant is immutable: it is invoked exactly once per
// successful phase, in enlistment order, and discarded with its
// transaction. Participants hold only value-copied descriptors and never a
// back-reference to their transaction.
type Participant struct {
	XID      uuid.UUID  `json:"xid"`
	BranchID uuid.UUID  `json:"branch_id"`
	Confirm  Invocation `json:"confirm"`
	Cancel   Invocation `json:"cancel"`
}

// NewParticipant builds a participant bound to the given transaction
// identity.
func NewParticipant(xid, branchID uuid.UUID, confirm, cancel Invocation) Participant {
	return Participant{
		XID:      xid,
		BranchID: branchID,
		Confirm:  confirm,
		Cancel:   cancel,
	}
}
