package tcc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoExistedTransaction is returned when a provider is driven to
	// confirm or cancel a branch whose record has already been deleted.
	// This is an expected condition after a duplicate delivery and callers
	// swallow it.
	ErrNoExistedTransaction = errors.New("transaction does not exist")

	// ErrOptimisticLock is returned when a persisted update lost a version
	// race, typically because a recovery sweep raced the live path.
	ErrOptimisticLock = errors.New("optimistic lock conflict")

	// ErrSystem marks programmer-facing invariant violations such as
	// mis-nested cleanup or mandatory propagation without a transaction.
	// It is fatal to the current call and never swallowed.
	ErrSystem = errors.New("tcc system error")

	// ErrUnknownStatus is returned when a persisted status string does not
	// map to a protocol status.
	ErrUnknownStatus = errors.New("unknown transaction status")
)

// ConfirmingError wraps a failure of the confirm phase. The transaction
// record remains persisted so the recovery sweep can re-drive the phase.
type ConfirmingError struct {
	Err error
}

func (e *ConfirmingError) Error() string {
	return fmt.Sprintf("confirming failed, recovery will retry: %v", e.Err)
}

func (e *ConfirmingError) Unwrap() error { return e.Err }

// CancellingError wraps a failure of the cancel phase. The transaction
// record remains persisted so the recovery sweep can re-drive the phase.
type CancellingError struct {
	Err error
}

func (e *CancellingError) Error() string {
	return fmt.Sprintf("cancelling failed, recovery will retry: %v", e.Err)
}

func (e *CancellingError) Unwrap() error { return e.Err }
