package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

// Memory is a map-backed repository. It serializes records the same way the
// durable backends do, so version checks and restore paths behave
// identically. Intended for tests and single-process deployments.
type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]byte

	handler slog.Handler
	logger  *slog.Logger
}

// NewMemory creates an empty in-memory repository. The handler is used when
// restoring transactions from stored records.
func NewMemory(handler slog.Handler) *Memory {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &Memory{
		records: make(map[uuid.UUID][]byte),
		handler: handler,
		logger:  slog.New(handler).WithGroup("repository.memory"),
	}
}

func (m *Memory) Create(ctx context.Context, tx *transaction.Transaction) error {
	data, err := MarshalSnapshot(tx.Snapshot())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[tx.XID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateXID, tx.XID())
	}
	m.records[tx.XID()] = data
	m.logger.Debug("Record created", "xid", tx.XID())
	return nil
}

func (m *Memory) Update(ctx context.Context, tx *transaction.Transaction) error {
	snap := tx.Snapshot()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.records[snap.XID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, snap.XID)
	}
	storedSnap, err := UnmarshalSnapshot(stored)
	if err != nil {
		return err
	}
	if storedSnap.Version != snap.Version {
		return fmt.Errorf("%w: %s stored=%d given=%d",
			tcc.ErrOptimisticLock, snap.XID, storedSnap.Version, snap.Version)
	}

	snap.Version++
	snap.LastUpdateTime = now
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	m.records[snap.XID] = data
	tx.MarkPersisted(snap.Version, now)
	m.logger.Debug("Record updated", "xid", snap.XID, "version", snap.Version)
	return nil
}

func (m *Memory) FindByXID(ctx context.Context, xid uuid.UUID) (*transaction.Transaction, error) {
	m.mu.RLock()
	data, exists := m.records[xid]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, xid)
	}

	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return transaction.FromSnapshot(snap, m.handler)
}

func (m *Memory) Delete(ctx context.Context, tx *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tx.XID())
	m.logger.Debug("Record deleted", "xid", tx.XID())
	return nil
}

func (m *Memory) FindStalledSince(ctx context.Context, olderThan time.Time) ([]*transaction.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stalled []*transaction.Transaction
	for _, data := range m.records {
		snap, err := UnmarshalSnapshot(data)
		if err != nil {
			return nil, err
		}
		if !snap.LastUpdateTime.Before(olderThan) {
			continue
		}
		tx, err := transaction.FromSnapshot(snap, m.handler)
		if err != nil {
			return nil, err
		}
		stalled = append(stalled, tx)
	}
	return stalled, nil
}

var _ TransactionRepository = (*Memory)(nil)
