// Package transaction provides the TCC transaction aggregate: identity,
// phase status, enlisted participants, and the confirm/cancel drivers that
// iterate them. Status transitions are guarded by a finite state machine
// and every transaction captures its own log history for later playback.
package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/robbyt/go-loglater"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction/finitestate"
)

// Transaction is the aggregate root of one TCC transaction, either the root
// on the initiator or a branch on a provider. It owns its participants as a
// strict tree; participants never point back.
type Transaction struct {
	xid      uuid.UUID
	branchID uuid.UUID
	txType   tcc.TransactionType

	fsm finitestate.Machine

	retriedCount   int
	version        int64
	createTime     time.Time
	lastUpdateTime time.Time

	participants []Participant
	attachments  map[string]any

	logger       *slog.Logger
	logCollector *loglater.LogCollector

	mu sync.Mutex
}

// NewRoot mints a fresh root transaction in the trying phase with a
// generated global id.
func NewRoot(handler slog.Handler) (*Transaction, error) {
	xid, err := uuid.NewV6()
	if err != nil {
		return nil, fmt.Errorf("mint xid: %w", err)
	}
	return newTransaction(xid, uuid.Nil, tcc.Root, tcc.Trying, handler)
}

// rootNamespace seeds deterministic xids for idempotent root begins.
var rootNamespace = uuid.NewV5(uuid.NamespaceURL, "tyloo/root")

// NewRootWithID mints a root transaction whose xid is derived from a stable
// business key, so a client retry of the same logical operation maps to the
// same transaction identity.
func NewRootWithID(uniqueID string, handler slog.Handler) (*Transaction, error) {
	if uniqueID == "" {
		return NewRoot(handler)
	}
	return newTransaction(uuid.NewV5(rootNamespace, uniqueID), uuid.Nil, tcc.Root, tcc.Trying, handler)
}

// NewBranch mints a branch transaction inheriting the global id from the
// inbound context. The branch id is adopted from the context when the
// caller minted one, otherwise a fresh id is generated here.
func NewBranch(txCtx tcc.Context, handler slog.Handler) (*Transaction, error) {
	branchID := txCtx.BranchID
	if branchID == uuid.Nil {
		minted, err := uuid.NewV6()
		if err != nil {
			return nil, fmt.Errorf("mint branch id: %w", err)
		}
		branchID = minted
	}
	return newTransaction(txCtx.XID, branchID, tcc.Branch, tcc.Trying, handler)
}

func newTransaction(
	xid, branchID uuid.UUID,
	txType tcc.TransactionType,
	status tcc.Status,
	handler slog.Handler,
) (*Transaction, error) {
	if handler == nil {
		handler = slog.Default().Handler()
	}

	collector := loglater.NewLogCollector(handler)
	logger := slog.New(collector).With("xid", xid, "type", txType)
	if branchID != uuid.Nil {
		logger = logger.With("branch", branchID)
	}

	machine, err := finitestate.NewPhaseMachine(logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("%s create phase machine: %w", xid, err)
	}
	if status != tcc.Trying {
		if err := machine.SetState(status.String()); err != nil {
			return nil, fmt.Errorf("%s set initial status: %w", xid, err)
		}
	}

	now := time.Now()
	tx := &Transaction{
		xid:            xid,
		branchID:       branchID,
		txType:         txType,
		fsm:            machine,
		version:        1,
		createTime:     now,
		lastUpdateTime: now,
		attachments:    make(map[string]any),
		logger:         logger,
		logCollector:   collector,
	}

	tx.logger.Debug("Transaction created", "status", status)
	return tx, nil
}

// XID returns the global transaction id shared by all branches.
func (t *Transaction) XID() uuid.UUID { return t.xid }

// BranchID returns the branch identity, or uuid.Nil for a root.
func (t *Transaction) BranchID() uuid.UUID { return t.branchID }

// Type reports whether this is the root or a branch.
func (t *Transaction) Type() tcc.TransactionType { return t.txType }

// Status returns the current phase.
func (t *Transaction) Status() tcc.Status {
	status, err := tcc.ParseStatus(t.fsm.GetState())
	if err != nil {
		// The machine only holds states minted from tcc.Status strings.
		panic(fmt.Sprintf("transaction %s in unmappable state %q", t.xid, t.fsm.GetState()))
	}
	return status
}

// ChangeStatus advances the phase. Setting the current status again is a
// no-op, which lets a provider re-driven by a duplicate delivery proceed;
// flipping between the confirming and cancelling directions is rejected by
// the state machine.
func (t *Transaction) ChangeStatus(status tcc.Status) error {
	if t.Status() == status {
		return nil
	}
	if err := t.fsm.Transition(status.String()); err != nil {
		return fmt.Errorf("transaction %s: %w", t.xid, err)
	}
	t.logger.Debug("Status changed", "status", status)
	return nil
}

// Enlist appends a participant. Insertion order is invocation order during
// both phases.
func (t *Transaction) Enlist(p Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.participants = append(t.participants, p)
	t.logger.Debug("Participant enlisted", "participant", p.Confirm.Target, "count", len(t.participants))
}

// Participants returns a copy of the enlisted participants in enlistment
// order.
func (t *Transaction) Participants() []Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Participant, len(t.participants))
	copy(out, t.participants)
	return out
}

// Commit invokes confirm on every participant in enlistment order. The
// first failure aborts the walk; the record stays persisted for recovery.
func (t *Transaction) Commit(ctx context.Context, invoker *Invoker) error {
	for _, p := range t.Participants() {
		txCtx := tcc.NewContext(p.XID, p.BranchID, tcc.Confirming)
		if err := invoker.Invoke(ctx, txCtx, p.Confirm); err != nil {
			return fmt.Errorf("confirm %s: %w", p.Confirm, err)
		}
	}
	t.logger.Debug("All participants confirmed")
	return nil
}

// Rollback invokes cancel on every participant in enlistment order.
func (t *Transaction) Rollback(ctx context.Context, invoker *Invoker) error {
	for _, p := range t.Participants() {
		txCtx := tcc.NewContext(p.XID, p.BranchID, tcc.Cancelling)
		if err := invoker.Invoke(ctx, txCtx, p.Cancel); err != nil {
			return fmt.Errorf("cancel %s: %w", p.Cancel, err)
		}
	}
	t.logger.Debug("All participants cancelled")
	return nil
}

// Version returns the optimistic concurrency version. Every successful
// repository update strictly increases it.
func (t *Transaction) Version() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// MarkPersisted records the version and timestamp written by a successful
// repository update. Called by repositories only.
func (t *Transaction) MarkPersisted(version int64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version = version
	t.lastUpdateTime = at
}

// RetriedCount returns how many times recovery has re-driven this record.
func (t *Transaction) RetriedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retriedCount
}

// IncrementRetriedCount advances the recovery retry counter.
func (t *Transaction) IncrementRetriedCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retriedCount++
}

// CreateTime returns when the transaction was minted.
func (t *Transaction) CreateTime() time.Time { return t.createTime }

// LastUpdateTime returns when the record was last persisted.
func (t *Transaction) LastUpdateTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUpdateTime
}

// SetAttachment stores an opaque key/value for callers; attachments are
// persisted with the record. Values must be plain JSON-compatible types.
func (t *Transaction) SetAttachment(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attachments[key] = value
}

// Attachment reads an attachment previously stored on the record.
func (t *Transaction) Attachment(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.attachments[key]
	return v, ok
}

// PlaybackLogs replays the transaction's captured log history to the given
// handler. Useful when a phase failure needs its full context surfaced.
func (t *Transaction) PlaybackLogs(handler slog.Handler) error {
	return t.logCollector.PlayLogs(handler)
}

func (t *Transaction) String() string {
	t.mu.Lock()
	version := t.version
	participants := len(t.participants)
	t.mu.Unlock()
	return fmt.Sprintf("transaction %s type=%s status=%s version=%d participants=%d",
		t.xid, t.txType, t.Status(), version, participants)
}
