// Package finitestate wraps the lifecycle state machine shared by the
// long-running components (recovery runner, coordinator server).
package finitestate

import (
	"context"
	"log/slog"
	"time"

	"github.com/robbyt/go-fsm"
)

const (
	StatusNew      = fsm.StatusNew
	StatusBooting  = fsm.StatusBooting
	StatusRunning  = fsm.StatusRunning
	StatusStopping = fsm.StatusStopping
	StatusStopped  = fsm.StatusStopped
	StatusError    = fsm.StatusError
	StatusUnknown  = fsm.StatusUnknown
)

// syncTimeout bounds synchronous state broadcasts so a slow subscriber
// cannot stall shutdown.
const syncTimeout = 5 * time.Second

// Machine is the lifecycle state machine surface the runnables depend on.
type Machine interface {
	// Transition attempts to transition the state machine to the specified state.
	Transition(state string) error

	// SetState sets the state of the state machine to the specified state.
	SetState(state string) error

	// GetState returns the current state of the state machine.
	GetState() string

	// GetStateChan returns a channel emitting the state on every change. The
	// channel is closed when ctx is canceled.
	GetStateChan(ctx context.Context) <-chan string
}

type machine struct {
	*fsm.Machine
}

func (m *machine) GetStateChan(ctx context.Context) <-chan string {
	return m.GetStateChanWithOptions(ctx, fsm.WithSyncTimeout(syncTimeout))
}

// New creates a lifecycle state machine starting at StatusNew with the
// standard transition set.
func New(handler slog.Handler) (Machine, error) {
	m, err := fsm.New(handler, StatusNew, fsm.TypicalTransitions)
	if err != nil {
		return nil, err
	}
	return &machine{Machine: m}, nil
}
