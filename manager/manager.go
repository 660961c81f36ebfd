// Package manager implements the TCC transaction manager: the state machine
// driver that creates transactions, enlists participants, switches phases,
// persists progress, and dispatches confirm/cancel against every enlisted
// participant. Phase transitions are persist-before-execute, so a crash
// between the status flip and the phase body is resumed by recovery.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tylooio/tyloo/repository"
	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

// TransactionManager drives transactions through begin, enlist, and the
// confirm/cancel phases against a persistent repository.
type TransactionManager struct {
	repo     repository.TransactionRepository
	invoker  *transaction.Invoker
	executor *Executor

	handler slog.Handler
	logger  *slog.Logger

	executorLimit int
}

// New creates a transaction manager backed by the given repository.
func New(repo repository.TransactionRepository, opts ...Option) (*TransactionManager, error) {
	if repo == nil {
		return nil, errors.New("transaction repository cannot be nil")
	}

	m := &TransactionManager{
		repo:          repo,
		invoker:       transaction.NewInvoker(),
		handler:       slog.Default().Handler(),
		executorLimit: DefaultExecutorLimit,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	m.logger = slog.New(m.handler).WithGroup("manager")
	if m.executor == nil {
		m.executor = NewExecutor(m.executorLimit, m.handler)
	}
	return m, nil
}

// Invoker returns the confirm/cancel handler registry. Participants' phase
// handlers must be registered here before their descriptors are enlisted.
func (m *TransactionManager) Invoker() *transaction.Invoker {
	return m.invoker
}

// Begin mints a fresh root transaction, persists it, and pushes it onto the
// chain's stack.
func (m *TransactionManager) Begin(ctx context.Context) (*transaction.Transaction, error) {
	tx, err := transaction.NewRoot(m.handler)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, tx)
}

// BeginWithID is Begin with a stable business key seeding the xid, making
// the root transaction idempotent across client retries.
func (m *TransactionManager) BeginWithID(ctx context.Context, uniqueID string) (*transaction.Transaction, error) {
	tx, err := transaction.NewRootWithID(uniqueID, m.handler)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, tx)
}

// PropagationNewBegin mints a branch transaction for an inbound trying
// context, persists it, and pushes it onto the stack.
func (m *TransactionManager) PropagationNewBegin(ctx context.Context, txCtx tcc.Context) (*transaction.Transaction, error) {
	tx, err := transaction.NewBranch(txCtx, m.handler)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, tx)
}

func (m *TransactionManager) start(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := m.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist %s transaction %s: %w", tx.Type(), tx.XID(), err)
	}
	if err := m.register(ctx, tx); err != nil {
		return nil, err
	}
	m.logger.Debug("Transaction started", "xid", tx.XID(), "type", tx.Type())
	return tx, nil
}

// PropagationExistBegin loads the branch for an inbound confirming or
// cancelling context and pushes it onto the stack. An absent record means
// the branch already completed; that expected condition surfaces as
// tcc.ErrNoExistedTransaction.
func (m *TransactionManager) PropagationExistBegin(ctx context.Context, txCtx tcc.Context) (*transaction.Transaction, error) {
	tx, err := m.repo.FindByXID(ctx, txCtx.XID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: xid %s", tcc.ErrNoExistedTransaction, txCtx.XID)
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", txCtx.XID, err)
	}

	if err := tx.ChangeStatus(txCtx.Status); err != nil {
		return nil, err
	}
	if err := m.register(ctx, tx); err != nil {
		return nil, err
	}
	m.logger.Debug("Transaction resumed", "xid", tx.XID(), "status", txCtx.Status)
	return tx, nil
}

// Commit flips the current transaction to confirming, persists the flip,
// then drives the confirm phase. With async the phase body runs on the
// bounded executor and Commit returns immediately; pool saturation raises a
// ConfirmingError and leaves the record for recovery.
func (m *TransactionManager) Commit(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return fmt.Errorf("%w: commit without an active transaction", tcc.ErrSystem)
	}

	if err := tx.ChangeStatus(tcc.Confirming); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, tx); err != nil {
		return fmt.Errorf("persist confirming flip for %s: %w", tx.XID(), err)
	}

	if async {
		phaseCtx := context.WithoutCancel(ctx)
		if !m.executor.TryGo(func() error { return m.confirmTransaction(phaseCtx, tx) }) {
			m.logger.Warn("Async confirm rejected by executor, recovery will confirm later", "xid", tx.XID())
			return &tcc.ConfirmingError{Err: errors.New("executor saturated")}
		}
		return nil
	}
	return m.confirmTransaction(ctx, tx)
}

// Rollback is symmetric to Commit with the cancelling direction.
func (m *TransactionManager) Rollback(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return fmt.Errorf("%w: rollback without an active transaction", tcc.ErrSystem)
	}

	if err := tx.ChangeStatus(tcc.Cancelling); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, tx); err != nil {
		return fmt.Errorf("persist cancelling flip for %s: %w", tx.XID(), err)
	}

	if async {
		phaseCtx := context.WithoutCancel(ctx)
		if !m.executor.TryGo(func() error { return m.cancelTransaction(phaseCtx, tx) }) {
			m.logger.Warn("Async cancel rejected by executor, recovery will cancel later", "xid", tx.XID())
			return &tcc.CancellingError{Err: errors.New("executor saturated")}
		}
		return nil
	}
	return m.cancelTransaction(ctx, tx)
}

func (m *TransactionManager) confirmTransaction(ctx context.Context, tx *transaction.Transaction) error {
	if err := tx.Commit(ctx, m.invoker); err != nil {
		m.logger.Warn("Transaction confirm failed, recovery will retry", "xid", tx.XID(), "error", err)
		return &tcc.ConfirmingError{Err: err}
	}
	if err := m.repo.Delete(ctx, tx); err != nil {
		m.logger.Warn("Transaction record delete failed after confirm", "xid", tx.XID(), "error", err)
		return &tcc.ConfirmingError{Err: err}
	}
	m.logger.Debug("Transaction confirmed", "xid", tx.XID())
	return nil
}

func (m *TransactionManager) cancelTransaction(ctx context.Context, tx *transaction.Transaction) error {
	if err := tx.Rollback(ctx, m.invoker); err != nil {
		m.logger.Warn("Transaction cancel failed, recovery will retry", "xid", tx.XID(), "error", err)
		return &tcc.CancellingError{Err: err}
	}
	if err := m.repo.Delete(ctx, tx); err != nil {
		m.logger.Warn("Transaction record delete failed after cancel", "xid", tx.XID(), "error", err)
		return &tcc.CancellingError{Err: err}
	}
	m.logger.Debug("Transaction cancelled", "xid", tx.XID())
	return nil
}

// EnlistParticipant appends a participant to the current transaction and
// persists the update.
func (m *TransactionManager) EnlistParticipant(ctx context.Context, p transaction.Participant) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return fmt.Errorf("%w: enlist without an active transaction", tcc.ErrSystem)
	}
	tx.Enlist(p)
	if err := m.repo.Update(ctx, tx); err != nil {
		return fmt.Errorf("persist participant for %s: %w", tx.XID(), err)
	}
	return nil
}

// CleanAfterCompletion pops the stack if tx is its top. A mismatch is a
// mis-nesting programmer bug and fails loudly with tcc.ErrSystem, leaving
// the stack unchanged.
func (m *TransactionManager) CleanAfterCompletion(ctx context.Context, tx *transaction.Transaction) error {
	s := stackFrom(ctx)
	if s == nil || s.empty() || tx == nil {
		return nil
	}
	if s.peek() != tx {
		return fmt.Errorf("%w: illegal transaction during cleanup, %s is not top of stack",
			tcc.ErrSystem, tx.XID())
	}
	s.pop()
	return nil
}

// CurrentTransaction returns the top of the chain's stack, or nil when no
// transaction is active.
func (m *TransactionManager) CurrentTransaction(ctx context.Context) *transaction.Transaction {
	s := stackFrom(ctx)
	if s == nil {
		return nil
	}
	return s.peek()
}

// IsTransactionActive reports whether the chain has an active transaction.
func (m *TransactionManager) IsTransactionActive(ctx context.Context) bool {
	return m.CurrentTransaction(ctx) != nil
}

// Shutdown drains in-flight deferred phases.
func (m *TransactionManager) Shutdown() {
	m.executor.Wait()
}

func (m *TransactionManager) register(ctx context.Context, tx *transaction.Transaction) error {
	s := stackFrom(ctx)
	if s == nil {
		return fmt.Errorf("%w: no transaction stack on context, wrap the chain with manager.WithStack",
			tcc.ErrSystem)
	}
	s.push(tx)
	return nil
}
