// Package recovery re-drives transactions whose driver died mid-phase. A
// sweep loads every record that has not been touched for the recover
// duration and finishes what the record says was in flight: confirming
// records are confirmed, cancelling records are cancelled, and a root still
// trying is presumed failed and cancelled. Records past the retry budget
// are quarantined for operator attention instead of being retried forever.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tylooio/tyloo/repository"
	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

const (
	// DefaultRecoverDuration is how long a record must sit untouched before
	// the sweep considers it stalled.
	DefaultRecoverDuration = 120 * time.Second

	// DefaultMaxRetryCount is the retry budget before a record is
	// quarantined.
	DefaultMaxRetryCount = 30
)

// Recovery sweeps the repository for stalled transaction records and drives
// them to completion through the shared invoker registry.
type Recovery struct {
	repo    repository.TransactionRepository
	invoker *transaction.Invoker

	recoverDuration time.Duration
	maxRetryCount   int

	handler slog.Handler
	logger  *slog.Logger

	now func() time.Time
}

// New creates a recovery sweep over the given repository. The invoker must
// resolve the same descriptors the participants were enlisted with.
func New(repo repository.TransactionRepository, invoker *transaction.Invoker, opts ...Option) (*Recovery, error) {
	if repo == nil {
		return nil, fmt.Errorf("transaction repository cannot be nil")
	}
	if invoker == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}

	r := &Recovery{
		repo:            repo,
		invoker:         invoker,
		recoverDuration: DefaultRecoverDuration,
		maxRetryCount:   DefaultMaxRetryCount,
		handler:         slog.Default().Handler(),
		now:             time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	r.logger = slog.New(r.handler).WithGroup("recovery")
	return r, nil
}

// SweepResult summarizes one recovery pass.
type SweepResult struct {
	// Recovered counts records driven to completion and deleted.
	Recovered int
	// Skipped counts branch records still trying (their root decides) and
	// records another sweeper claimed first.
	Skipped int
	// Quarantined counts records past the retry budget.
	Quarantined int
	// Failed counts records whose phase body errored; they stay for the
	// next pass.
	Failed int
}

// Sweep runs one recovery pass and reports what it did. Individual record
// failures never abort the pass.
func (r *Recovery) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	cutoff := r.now().Add(-r.recoverDuration)
	stalled, err := r.repo.FindStalledSince(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("find stalled transactions: %w", err)
	}

	for _, tx := range stalled {
		switch r.recoverOne(ctx, tx) {
		case outcomeRecovered:
			result.Recovered++
		case outcomeSkipped:
			result.Skipped++
		case outcomeQuarantined:
			result.Quarantined++
		case outcomeFailed:
			result.Failed++
		}
	}

	if result != (SweepResult{}) {
		r.logger.Info("Recovery sweep finished",
			"recovered", result.Recovered,
			"skipped", result.Skipped,
			"quarantined", result.Quarantined,
			"failed", result.Failed)
	}
	return result, nil
}

type outcome int

const (
	outcomeRecovered outcome = iota
	outcomeSkipped
	outcomeQuarantined
	outcomeFailed
)

func (r *Recovery) recoverOne(ctx context.Context, tx *transaction.Transaction) outcome {
	logger := r.logger.With("xid", tx.XID(), "status", tx.Status(), "type", tx.Type())

	if tx.RetriedCount() > r.maxRetryCount {
		logger.Error("Transaction exceeded retry budget, manual intervention required",
			"retried", tx.RetriedCount())
		return outcomeQuarantined
	}

	// A branch still trying has no decision yet; its root will deliver one.
	if tx.Status() == tcc.Trying && tx.Type() == tcc.Branch {
		return outcomeSkipped
	}

	// Claim the record through the version check so concurrent sweepers
	// cannot double-drive the same transaction.
	tx.IncrementRetriedCount()
	if err := r.repo.Update(ctx, tx); err != nil {
		if errors.Is(err, tcc.ErrOptimisticLock) {
			logger.Debug("Transaction claimed by another sweeper")
		} else {
			logger.Warn("Failed to claim transaction", "error", err)
		}
		return outcomeSkipped
	}

	switch tx.Status() {
	case tcc.Confirming:
		if err := tx.Commit(ctx, r.invoker); err != nil {
			logger.Warn("Recovered confirm failed", "error", err)
			return outcomeFailed
		}

	case tcc.Cancelling:
		if err := tx.Rollback(ctx, r.invoker); err != nil {
			logger.Warn("Recovered cancel failed", "error", err)
			return outcomeFailed
		}

	case tcc.Trying:
		// A root stalled in trying never reached its decision; presume
		// failure and cancel.
		if err := tx.ChangeStatus(tcc.Cancelling); err != nil {
			logger.Warn("Failed to flip stalled root to cancelling", "error", err)
			return outcomeFailed
		}
		if err := r.repo.Update(ctx, tx); err != nil {
			logger.Warn("Failed to persist cancelling flip", "error", err)
			return outcomeFailed
		}
		if err := tx.Rollback(ctx, r.invoker); err != nil {
			logger.Warn("Recovered cancel failed", "error", err)
			return outcomeFailed
		}

	default:
		logger.Error("Transaction in unknown status")
		return outcomeFailed
	}

	if err := r.repo.Delete(ctx, tx); err != nil {
		logger.Warn("Failed to delete completed transaction", "error", err)
		return outcomeFailed
	}
	logger.Info("Transaction recovered")
	return outcomeRecovered
}
