package transaction

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tylooio/tyloo/tcc"
)

// Snapshot is the persistence view of a transaction: every field a
// repository stores, detached from the live aggregate.
type Snapshot struct {
	XID            uuid.UUID
	BranchID       uuid.UUID
	Type           tcc.TransactionType
	Status         tcc.Status
	RetriedCount   int
	Version        int64
	CreateTime     time.Time
	LastUpdateTime time.Time
	Participants   []Participant
	Attachments    map[string]any
}

// Snapshot captures the transaction's persisted state.
func (t *Transaction) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	participants := make([]Participant, len(t.participants))
	copy(participants, t.participants)

	return Snapshot{
		XID:            t.xid,
		BranchID:       t.branchID,
		Type:           t.txType,
		Status:         t.Status(),
		RetriedCount:   t.retriedCount,
		Version:        t.version,
		CreateTime:     t.createTime,
		LastUpdateTime: t.lastUpdateTime,
		Participants:   participants,
		Attachments:    maps.Clone(t.attachments),
	}
}

// FromSnapshot rebuilds a live transaction from its persisted state.
func FromSnapshot(s Snapshot, handler slog.Handler) (*Transaction, error) {
	if !s.Status.Valid() {
		return nil, fmt.Errorf("restore %s: %w: %d", s.XID, tcc.ErrUnknownStatus, s.Status)
	}

	tx, err := newTransaction(s.XID, s.BranchID, s.Type, s.Status, handler)
	if err != nil {
		return nil, err
	}

	tx.retriedCount = s.RetriedCount
	tx.version = s.Version
	tx.createTime = s.CreateTime
	tx.lastUpdateTime = s.LastUpdateTime
	tx.participants = make([]Participant, len(s.Participants))
	copy(tx.participants, s.Participants)
	if s.Attachments != nil {
		tx.attachments = maps.Clone(s.Attachments)
	}
	return tx, nil
}
