package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robbyt/go-supervisor/supervisor"

	"github.com/tylooio/tyloo/internal/finitestate"
)

// DefaultInterval is the pause between recovery sweeps.
const DefaultInterval = 30 * time.Second

// Interface guards
var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// Runner runs the recovery sweep on a ticker under supervisor control.
type Runner struct {
	recovery *Recovery
	interval time.Duration

	fsm    finitestate.Machine
	logger *slog.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
}

// RunnerOption represents a functional option for configuring Runner.
type RunnerOption func(*Runner) error

// WithInterval sets the pause between sweeps.
func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive")
		}
		r.interval = d
		return nil
	}
}

// WithRunnerLogHandler sets a custom slog handler for the runner.
func WithRunnerLogHandler(handler slog.Handler) RunnerOption {
	return func(r *Runner) error {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("recovery.Runner")
		}
		return nil
	}
}

// NewRunner creates a runner that sweeps on an interval.
func NewRunner(recovery *Recovery, opts ...RunnerOption) (*Runner, error) {
	if recovery == nil {
		return nil, fmt.Errorf("recovery cannot be nil")
	}

	r := &Runner{
		recovery: recovery,
		interval: DefaultInterval,
		logger:   slog.Default().WithGroup("recovery.Runner"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	machine, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = machine
	return r, nil
}

// String implements the supervisor.Runnable interface.
func (r *Runner) String() string {
	return "recovery.Runner"
}

// Run implements the supervisor.Runnable interface. It sweeps once at boot,
// then on every tick until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Debug("Starting recovery runner", "interval", r.interval)

	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	r.runCtx, r.runCancel = context.WithCancel(ctx)
	defer r.runCancel()

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}

	r.sweep(r.runCtx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.runCtx.Done():
			r.logger.Debug("Run context canceled")
			return r.shutdown()
		case <-ticker.C:
			r.sweep(r.runCtx)
		}
	}
}

// Stop implements the supervisor.Runnable interface.
func (r *Runner) Stop() {
	r.logger.Debug("Stop called")
	if r.runCancel != nil {
		r.runCancel()
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.recovery.Sweep(ctx); err != nil {
		r.logger.Error("Recovery sweep failed", "error", err)
	}
}

func (r *Runner) shutdown() error {
	if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
		r.logger.Error("Failed to transition to stopping state", "error", err)
	}
	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		return fmt.Errorf("failed to transition to stopped state: %w", err)
	}
	return nil
}
