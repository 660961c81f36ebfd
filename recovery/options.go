package recovery

import (
	"errors"
	"log/slog"
	"time"
)

// Option represents a functional option for configuring Recovery.
type Option func(*Recovery) error

// WithLogHandler sets a custom slog handler for the recovery sweep.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Recovery) error {
		if handler != nil {
			r.handler = handler
		}
		return nil
	}
}

// WithRecoverDuration sets how long a record must sit untouched before it
// is considered stalled.
func WithRecoverDuration(d time.Duration) Option {
	return func(r *Recovery) error {
		if d <= 0 {
			return errors.New("recover duration must be positive")
		}
		r.recoverDuration = d
		return nil
	}
}

// WithMaxRetryCount sets the retry budget before quarantine.
func WithMaxRetryCount(n int) Option {
	return func(r *Recovery) error {
		if n <= 0 {
			return errors.New("max retry count must be positive")
		}
		r.maxRetryCount = n
		return nil
	}
}

// withClock overrides the sweep's time source for tests.
func withClock(now func() time.Time) Option {
	return func(r *Recovery) error {
		r.now = now
		return nil
	}
}
