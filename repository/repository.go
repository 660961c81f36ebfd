// Package repository defines the persistence contract for TCC transaction
// records and ships memory, redis, and sqlite implementations. One record
// exists per transaction, keyed by xid; records are deleted only after a
// phase completes, and every update passes an optimistic version check.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tylooio/tyloo/transaction"
)

var (
	// ErrDuplicateXID is returned by Create when a record with the same xid
	// already exists.
	ErrDuplicateXID = errors.New("transaction record already exists")

	// ErrNotFound is returned when no record exists for the given xid.
	ErrNotFound = errors.New("transaction record not found")
)

// TransactionRepository persists transaction records. Implementations must
// provide compare-and-set semantics on Update keyed by the record version;
// a stale version fails with tcc.ErrOptimisticLock.
type TransactionRepository interface {
	// Create inserts a new record. Fails with ErrDuplicateXID on collision.
	Create(ctx context.Context, tx *transaction.Transaction) error

	// Update overwrites the record if the stored version matches the
	// transaction's version, then increments it. A mismatch fails with
	// tcc.ErrOptimisticLock; a missing record with ErrNotFound.
	Update(ctx context.Context, tx *transaction.Transaction) error

	// FindByXID loads the record for the given global transaction id, or
	// ErrNotFound.
	FindByXID(ctx context.Context, xid uuid.UUID) (*transaction.Transaction, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, tx *transaction.Transaction) error

	// FindStalledSince returns all records whose last update is older than
	// the given time. The recovery sweep uses this to find transactions
	// whose driver died mid-phase.
	FindStalledSince(ctx context.Context, olderThan time.Time) ([]*transaction.Transaction, error)
}
