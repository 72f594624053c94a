package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/fnordcredit/fnordcredit/pkg/log"
)

var (
	ErrNotRunning     = errors.New("not running")
	ErrAlreadyRunning = errors.New("already running")
)

// State is the lifecycle state of a component.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Observer is told about every successful transition.
type Observer interface {
	OnStateChange(previous, current State, reason string)
}

// Manager guards state transitions and counts running workers.
type Manager struct {
	mu       sync.RWMutex
	state    State
	wg       sync.WaitGroup
	logger   log.Logger
	observer Observer
}

// NewManager returns a manager in StateStopped. observer may be nil.
func NewManager(logger log.Logger, observer Observer) *Manager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Manager{
		state:    StateStopped,
		logger:   logger,
		observer: observer,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TransitionTo moves to next, or returns ErrNotRunning / ErrAlreadyRunning
// when the move is not allowed from the current state.
func (m *Manager) TransitionTo(next State, reason string) error {
	m.mu.Lock()
	prev := m.state
	if err := checkTransition(prev, next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.OnStateChange(prev, next, reason)
	}
	m.logger.Debug("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

func checkTransition(from, to State) error {
	switch from {
	case StateStopped:
		if to != StateStarting {
			return ErrNotRunning
		}
	case StateStarting:
		if to != StateRunning && to != StateStopping && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateRunning:
		if to != StateStopping && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateStopping:
		if to != StateStopped && to != StateCrashed {
			return ErrAlreadyRunning
		}
	case StateCrashed:
		if to != StateStarting {
			return ErrNotRunning
		}
	}
	return nil
}

func (m *Manager) CanStart() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateStopped || m.state == StateCrashed
}

func (m *Manager) CanStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning || m.state == StateStarting
}

// Accepting reports whether new work may begin.
func (m *Manager) Accepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning || m.state == StateStarting
}

// Enter registers a worker if the manager is accepting work. The caller must
// call the returned done func when finished. ok is false after shutdown began.
func (m *Manager) Enter() (done func(), ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning && m.state != StateStarting {
		return nil, false
	}
	// Add under the read lock so Wait cannot start between the check and Add.
	m.wg.Add(1)
	return m.wg.Done, true
}

// Wait blocks until every worker registered via Enter is done or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown wait interrupted", log.Err(ctx.Err()))
		return ctx.Err()
	}
}
