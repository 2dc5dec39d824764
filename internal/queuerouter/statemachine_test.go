package queuerouter

import (
	"testing"

	"github.com/leon-agent/leon/internal/models"
)

func TestNewStateMachineStartsIdle(t *testing.T) {
	m := NewStateMachine()
	if got := m.State(); got != models.StateIdle {
		t.Errorf("State() = %q, want %q", got, models.StateIdle)
	}
}

func TestStateMachineTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to models.SupervisorState
	}{
		{models.StateIdle, models.StateRunning},
		{models.StateRunning, models.StateToolExec},
		{models.StateRunning, models.StateIdle},
		{models.StateRunning, models.StateCancelling},
		{models.StateToolExec, models.StateRunning},
		{models.StateCancelling, models.StateIdle},
		{models.StateError, models.StateRecovering},
		{models.StateRecovering, models.StateIdle},
		{models.StateSuspended, models.StateRunning},
	}
	for _, c := range cases {
		m := &StateMachine{state: c.from}
		if err := m.Transition(c.to); err != nil {
			t.Errorf("Transition(%s -> %s) error = %v, want nil", c.from, c.to, err)
		}
		if got := m.State(); got != c.to {
			t.Errorf("after Transition(%s -> %s): State() = %q, want %q", c.from, c.to, got, c.to)
		}
	}
}

func TestStateMachineTransitionRejected(t *testing.T) {
	m := NewStateMachine()
	err := m.Transition(models.StateToolExec)
	if err == nil {
		t.Fatal("expected error transitioning IDLE -> TOOL_EXEC directly")
	}
	var invalid *ErrInvalidTransition
	if !errorsAsInvalidTransition(err, &invalid) {
		t.Fatalf("error = %v, want *ErrInvalidTransition", err)
	}
	if invalid.From != models.StateIdle || invalid.To != models.StateToolExec {
		t.Errorf("ErrInvalidTransition = %+v, want From=IDLE To=TOOL_EXEC", invalid)
	}
	if m.State() != models.StateIdle {
		t.Error("rejected transition should not change state")
	}
}

func TestStateMachineShutdownAlwaysAllowed(t *testing.T) {
	for _, from := range []models.SupervisorState{
		models.StateIdle, models.StateRunning, models.StateToolExec,
		models.StateError, models.StateSuspended, models.StateCancelling,
	} {
		m := &StateMachine{state: from}
		if err := m.Transition(models.StateShutdown); err != nil {
			t.Errorf("Transition(%s -> SHUTDOWN) error = %v, want nil", from, err)
		}
		if m.State() != models.StateShutdown {
			t.Errorf("from %s: State() = %q, want SHUTDOWN", from, m.State())
		}
	}
}

func TestStateMachineFlags(t *testing.T) {
	m := NewStateMachine()
	m.SetFlag(func(f *models.SupervisorFlags) { f.HasPendingQueue = true })
	m.SetFlag(func(f *models.SupervisorFlags) { f.RateLimited = true })

	flags := m.Flags()
	if !flags.HasPendingQueue || !flags.RateLimited {
		t.Errorf("Flags() = %+v, want HasPendingQueue and RateLimited set", flags)
	}
	if flags.Compacting {
		t.Error("Compacting should remain unset")
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	m := NewStateMachine()
	m.SetFlag(func(f *models.SupervisorFlags) { f.AwaitingUser = true })

	snap := m.Snapshot()
	if snap.State != models.StateIdle {
		t.Errorf("Snapshot().State = %q, want IDLE", snap.State)
	}
	if !snap.Flags.AwaitingUser {
		t.Error("Snapshot().Flags.AwaitingUser should be true")
	}
}

func errorsAsInvalidTransition(err error, target **ErrInvalidTransition) bool {
	e, ok := err.(*ErrInvalidTransition)
	if !ok {
		return false
	}
	*target = e
	return true
}
