package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/tylooio/tyloo/tcc"
	"github.com/tylooio/tyloo/transaction"
)

// DefaultRedisKeyPrefix namespaces transaction records in the keyspace.
const DefaultRedisKeyPrefix = "tyloo:tx:"

// Redis persists transaction records in a redis keyspace, one key per xid.
// Optimistic concurrency uses WATCH: an update that races another writer
// fails with tcc.ErrOptimisticLock instead of clobbering it.
type Redis struct {
	client    *redis.Client
	keyPrefix string

	handler slog.Handler
	logger  *slog.Logger
}

// RedisOption configures the Redis repository.
type RedisOption func(*Redis)

// WithRedisKeyPrefix overrides the key namespace.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedis wraps an existing redis client. The handler is used when
// restoring transactions from stored records.
func NewRedis(client *redis.Client, handler slog.Handler, opts ...RedisOption) *Redis {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	r := &Redis{
		client:    client,
		keyPrefix: DefaultRedisKeyPrefix,
		handler:   handler,
		logger:    slog.New(handler).WithGroup("repository.redis"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(xid uuid.UUID) string {
	return r.keyPrefix + xid.String()
}

func (r *Redis) Create(ctx context.Context, tx *transaction.Transaction) error {
	data, err := MarshalSnapshot(tx.Snapshot())
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.key(tx.XID()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create %s: %w", tx.XID(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateXID, tx.XID())
	}
	r.logger.Debug("Record created", "xid", tx.XID())
	return nil
}

func (r *Redis) Update(ctx context.Context, tx *transaction.Transaction) error {
	snap := tx.Snapshot()
	now := time.Now()
	key := r.key(snap.XID)

	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		stored, err := rtx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, snap.XID)
		}
		if err != nil {
			return fmt.Errorf("redis read %s: %w", snap.XID, err)
		}

		storedSnap, err := UnmarshalSnapshot(stored)
		if err != nil {
			return err
		}
		if storedSnap.Version != snap.Version {
			return fmt.Errorf("%w: %s stored=%d given=%d",
				tcc.ErrOptimisticLock, snap.XID, storedSnap.Version, snap.Version)
		}

		next := snap
		next.Version++
		next.LastUpdateTime = now
		data, err := MarshalSnapshot(next)
		if err != nil {
			return err
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// The watched key changed under us.
		return fmt.Errorf("%w: %s", tcc.ErrOptimisticLock, snap.XID)
	}
	if err != nil {
		return err
	}

	tx.MarkPersisted(snap.Version+1, now)
	r.logger.Debug("Record updated", "xid", snap.XID, "version", snap.Version+1)
	return nil
}

func (r *Redis) FindByXID(ctx context.Context, xid uuid.UUID) (*transaction.Transaction, error) {
	data, err := r.client.Get(ctx, r.key(xid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, xid)
	}
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", xid, err)
	}

	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return transaction.FromSnapshot(snap, r.handler)
}

func (r *Redis) Delete(ctx context.Context, tx *transaction.Transaction) error {
	if err := r.client.Del(ctx, r.key(tx.XID())).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", tx.XID(), err)
	}
	r.logger.Debug("Record deleted", "xid", tx.XID())
	return nil
}

func (r *Redis) FindStalledSince(ctx context.Context, olderThan time.Time) ([]*transaction.Transaction, error) {
	var stalled []*transaction.Transaction

	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			// Deleted between scan and read.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis read %s: %w", iter.Val(), err)
		}

		snap, err := UnmarshalSnapshot(data)
		if err != nil {
			return nil, err
		}
		if !snap.LastUpdateTime.Before(olderThan) {
			continue
		}
		tx, err := transaction.FromSnapshot(snap, r.handler)
		if err != nil {
			return nil, err
		}
		stalled = append(stalled, tx)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return stalled, nil
}

var _ TransactionRepository = (*Redis)(nil)
