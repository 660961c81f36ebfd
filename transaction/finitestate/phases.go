// Package finitestate provides the finite state machine that guards a TCC
// transaction's phase transitions.
package finitestate

import (
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// Phase state constants. The trying state may advance to exactly one of the
// two terminating directions; once a direction has been persisted the
// transaction never flips to the other one.
const (
	StateTrying     = "trying"
	StateConfirming = "confirming"
	StateCancelling = "cancelling"
)

// PhaseTransitions defines the valid phase transitions for a transaction.
// Confirming and cancelling have no outgoing edges: a transaction leaves
// those states only by being deleted after the phase completes.
var PhaseTransitions = map[string][]string{
	StateTrying:     {StateConfirming, StateCancelling},
	StateConfirming: {},
	StateCancelling: {},
}

// Machine is the subset of the state machine used by transactions.
type Machine interface {
	// Transition attempts a validated transition to the given state.
	Transition(state string) error

	// SetState forces the machine into the given state, bypassing
	// transition validation. Used when restoring persisted transactions.
	SetState(state string) error

	// GetState returns the current state.
	GetState() string
}

// NewPhaseMachine creates a phase state machine starting in the trying state.
func NewPhaseMachine(handler slog.Handler) (Machine, error) {
	return fsm.New(handler, StateTrying, PhaseTransitions)
}
