package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tyloo_transactions (
	xid              TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	version          INTEGER NOT NULL,
	retried_count    INTEGER NOT NULL,
	last_update_time INTEGER NOT NULL,
	content          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tyloo_transactions_last_update
	ON tyloo_transactions (last_update_time);
`

// SQLite persists transaction records in a sqlite database. The version
// compare-and-set rides on a conditional UPDATE, so concurrent writers
// cannot both win.
type SQLite struct {
	db *sql.DB

	handler slog.Handler
	logger  *slog.Logger
}

// NewSQLite wraps an open database handle and bootstraps the schema.
func NewSQLite(ctx context.Context, db *sql.DB, handler slog.Handler) (*SQLite, error) {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	return &SQLite{
		db:      db,
		handler: handler,
		logger:  slog.New(handler).WithGroup("repository.sqlite"),
	}, nil
}

func (s *SQLite) Create(ctx context.Context, tx *transaction.Transaction) error {
	snap := tx.Snapshot()
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tyloo_transactions (xid, status, version, retried_count, last_update_time, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.XID.String(), snap.Status.String(), snap.Version, snap.RetriedCount,
		snap.LastUpdateTime.UnixNano(), data)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicateXID, snap.XID)
		}
		return fmt.Errorf("sqlite create %s: %w", snap.XID, err)
	}
	s.logger.Debug("Record created", "xid", snap.XID)
	return nil
}

func (s *SQLite) Update(ctx context.Context, tx *transaction.Transaction) error {
	snap := tx.Snapshot()
	now := time.Now()

	next := snap
	next.Version++
	next.LastUpdateTime = now
	data, err := MarshalSnapshot(next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tyloo_transactions
		 SET status = ?, version = ?, retried_count = ?, last_update_time = ?, content = ?
		 WHERE xid = ? AND version = ?`,
		next.Status.String(), next.Version, next.RetriedCount, now.UnixNano(), data,
		snap.XID.String(), snap.Version)
	if err != nil {
		return fmt.Errorf("sqlite update %s: %w", snap.XID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite update %s: %w", snap.XID, err)
	}
	if affected == 0 {
		var exists int
		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tyloo_transactions WHERE xid = ?`, snap.XID.String())
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("sqlite update %s: %w", snap.XID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, snap.XID)
		}
		return fmt.Errorf("%w: %s given=%d", tcc.ErrOptimisticLock, snap.XID, snap.Version)
	}

	tx.MarkPersisted(next.Version, now)
	s.logger.Debug("Record updated", "xid", snap.XID, "version", next.Version)
	return nil
}

func (s *SQLite) FindByXID(ctx context.Context, xid uuid.UUID) (*transaction.Transaction, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT content FROM tyloo_transactions WHERE xid = ?`, xid.String())
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, xid)
		}
		return nil, fmt.Errorf("sqlite read %s: %w", xid, err)
	}

	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return transaction.FromSnapshot(snap, s.handler)
}

func (s *SQLite) Delete(ctx context.Context, tx *transaction.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tyloo_transactions WHERE xid = ?`, tx.XID().String())
	if err != nil {
		return fmt.Errorf("sqlite delete %s: %w", tx.XID(), err)
	}
	s.logger.Debug("Record deleted", "xid", tx.XID())
	return nil
}

func (s *SQLite) FindStalledSince(ctx context.Context, olderThan time.Time) ([]*transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM tyloo_transactions WHERE last_update_time < ? ORDER BY last_update_time`,
		olderThan.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite scan stalled: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var stalled []*transaction.Transaction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan stalled: %w", err)
		}
		snap, err := UnmarshalSnapshot(data)
		if err != nil {
			return nil, err
		}
		tx, err := transaction.FromSnapshot(snap, s.handler)
		if err != nil {
			return nil, err
		}
		stalled = append(stalled, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite scan stalled: %w", err)
	}
	return stalled, nil
}

var _ TransactionRepository = (*SQLite)(nil)
