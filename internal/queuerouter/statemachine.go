// Package queuerouter implements the per-thread supervisor state machine
// and the inbound-message routing policy built on top of it (§4.4 Queue
// Router & State Machine).
package queuerouter

import (
	"fmt"
	"sync"

	"github.com/leon-agent/leon/internal/models"
)

// StateMachine tracks one thread's supervisor state and flags. New code:
// nexus's run lifecycle lives implicitly in its runtime loop with no
// explicit state type, so this is built directly from §4.4's state table
// rather than adapted from a teacher file.
type StateMachine struct {
	mu    sync.Mutex
	state models.SupervisorState
	flags models.SupervisorFlags
}

// NewStateMachine starts a thread in IDLE with every flag clear.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: models.StateIdle}
}

// allowedTransitions lists the state table's edges of interest (§4.4
// "Transitions of interest"). Transitions not listed are rejected.
var allowedTransitions = map[models.SupervisorState]map[models.SupervisorState]bool{
	models.StateIdle: {
		models.StateRunning: true,
	},
	models.StateRunning: {
		models.StateToolExec:   true,
		models.StateIdle:       true,
		models.StateCancelling: true,
		models.StateError:      true,
	},
	models.StateToolExec: {
		models.StateRunning:    true,
		models.StateCancelling: true,
		models.StateError:      true,
	},
	models.StateCancelling: {
		models.StateIdle: true,
	},
	models.StateError: {
		models.StateRecovering: true,
	},
	models.StateRecovering: {
		models.StateIdle:    true,
		models.StateRunning: true,
		models.StateError:   true,
	},
	models.StateSuspended: {
		models.StateIdle:    true,
		models.StateRunning: true,
	},
	models.StateShutdown: {},
}

// ErrInvalidTransition is returned when a transition isn't in the state
// table.
type ErrInvalidTransition struct {
	From, To models.SupervisorState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("queuerouter: invalid transition %s -> %s", e.From, e.To)
}

// Transition moves the machine to `to`, rejecting edges the state table
// doesn't allow. SHUTDOWN is reachable from any state (process teardown is
// never refused).
func (m *StateMachine) Transition(to models.SupervisorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to == models.StateShutdown {
		m.state = to
		return nil
	}
	if !allowedTransitions[m.state][to] {
		return &ErrInvalidTransition{From: m.state, To: to}
	}
	m.state = to
	return nil
}

// State returns the current state.
func (m *StateMachine) State() models.SupervisorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetFlag sets one of the independent boolean signals tracked alongside
// state (§4.4 flag list).
func (m *StateMachine) SetFlag(set func(*models.SupervisorFlags)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set(&m.flags)
}

// Flags returns a copy of the current flags.
func (m *StateMachine) Flags() models.SupervisorFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// Snapshot is the (state, flags) pair surfaced on a status event.
type Snapshot struct {
	State models.SupervisorState `json:"state"`
	Flags models.SupervisorFlags `json:"flags"`
}

// Snapshot returns the current (state, flags) pair.
func (m *StateMachine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Flags: m.flags}
}
