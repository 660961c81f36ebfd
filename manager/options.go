package manager

import (
	"errors"
	"log/slog"

	"github.com/tylooio/tyloo/transaction"
)

// Option represents a functional option for configuring TransactionManager.
type Option func(*TransactionManager) error

// WithLogHandler sets a custom slog handler for the manager and everything
// it creates (transactions, executor).
func WithLogHandler(handler slog.Handler) Option {
	return func(m *TransactionManager) error {
		if handler != nil {
			m.handler = handler
		}
		return nil
	}
}

// WithInvoker shares an existing handler registry, letting several managers
// (or a manager and a recovery sweep) resolve the same descriptors.
func WithInvoker(invoker *transaction.Invoker) Option {
	return func(m *TransactionManager) error {
		if invoker == nil {
			return errors.New("invoker cannot be nil")
		}
		m.invoker = invoker
		return nil
	}
}

// WithExecutor supplies a pre-built executor, typically shared across
// managers.
func WithExecutor(executor *Executor) Option {
	return func(m *TransactionManager) error {
		if executor == nil {
			return errors.New("executor cannot be nil")
		}
		m.executor = executor
		return nil
	}
}

// WithExecutorLimit bounds the async phase pool. Non-positive values are
// ignored.
func WithExecutorLimit(limit int) Option {
	return func(m *TransactionManager) error {
		if limit > 0 {
			m.executorLimit = limit
		}
		return nil
	}
}
