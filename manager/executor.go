package manager

import (
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultExecutorLimit bounds the number of concurrently executing deferred
// phases.
const DefaultExecutorLimit = 16

// Executor runs deferred confirm/cancel phase bodies on a bounded pool,
// separate from the request-handling goroutines so a slow participant
// cannot cause head-of-line blocking. Saturation is surfaced as explicit
// rejection; the caller converts that into a phase error so the recovery
// sweep owns eventual completion.
type Executor struct {
	group  *errgroup.Group
	logger *slog.Logger
}

// NewExecutor creates a bounded executor. A non-positive limit falls back
// to DefaultExecutorLimit.
func NewExecutor(limit int, handler slog.Handler) *Executor {
	if limit <= 0 {
		limit = DefaultExecutorLimit
	}
	if handler == nil {
		handler = slog.Default().Handler()
	}
	group := &errgroup.Group{}
	group.SetLimit(limit)
	return &Executor{
		group:  group,
		logger: slog.New(handler).WithGroup("manager.executor"),
	}
}

// TryGo submits a phase body. It returns false when the pool is saturated;
// the phase is then left to recovery. Errors from the body are logged here
// and never propagate: once a phase flip is persisted the record itself is
// the source of truth for what still needs to run.
func (e *Executor) TryGo(fn func() error) bool {
	return e.group.TryGo(func() error {
		if err := fn(); err != nil {
			e.logger.Warn("Deferred phase failed, recovery will retry", "error", err)
		}
		return nil
	})
}

// Wait blocks until all submitted phase bodies have finished. Used during
// shutdown to drain in-flight phases.
func (e *Executor) Wait() {
	_ = e.group.Wait()
}
