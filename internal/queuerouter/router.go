package queuerouter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leon-agent/leon/internal/models"
)

// SteerInjection is a steering message ready to fold into the live run's
// next model call as a system-reminder (§4.4 "steer" mode). Fields mirror
// nexus's SteeringMessage, trimmed to what injection needs.
type SteerInjection struct {
	Content  string
	Priority int
}

// Store persists QueuedMessage rows (§3 QueuedMessage, §6 event log table
// neighbor). Implementations back this with the embedded database.
type Store interface {
	Enqueue(ctx context.Context, msg *models.QueuedMessage) error
	PopFront(ctx context.Context, threadID string) (*models.QueuedMessage, error)
	HasPending(ctx context.Context, threadID string) (bool, error)
}

// ThreadQueue is one thread's routing surface: a FIFO backlog plus an
// in-process steering channel, grounded on nexus's SteeringQueue
// (internal/agent/steering.go), generalized from an in-run attachment to a
// persisted per-thread mailbox with an explicit state machine gating it.
type ThreadQueue struct {
	threadID string
	store    Store
	machine  *StateMachine

	mu       sync.Mutex
	steering []SteerInjection
}

// NewThreadQueue wires a queue to its backing store and state machine.
func NewThreadQueue(threadID string, store Store, machine *StateMachine) *ThreadQueue {
	return &ThreadQueue{threadID: threadID, store: store, machine: machine}
}

// Route implements §4.4's routing-mode decision table for one inbound user
// message, given the thread's current state, whether its queue is
// non-empty, and whether steering is enabled for this thread. It persists
// the message (mode recorded on the row) except for steer, which is
// injected in-process and never touches the FIFO queue (§4.4 "Steer
// messages preempt FIFO by injecting inline, not by reordering the
// queue").
func (q *ThreadQueue) Route(ctx context.Context, content string, steerEnabled bool, explicitOverride bool) (models.QueueMode, error) {
	state := q.machine.State()
	pending, err := q.store.HasPending(ctx, q.threadID)
	if err != nil {
		return "", err
	}

	mode := chooseMode(state, pending, steerEnabled, explicitOverride)

	if mode == models.ModeSteer {
		q.mu.Lock()
		q.steering = append(q.steering, SteerInjection{Content: content})
		q.mu.Unlock()
		q.machine.SetFlag(func(f *models.SupervisorFlags) { f.SteerRequested = true })
		return mode, nil
	}

	msg := &models.QueuedMessage{
		ID:        uuid.NewString(),
		ThreadID:  q.threadID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Mode:      mode,
	}
	if err := q.store.Enqueue(ctx, msg); err != nil {
		return "", err
	}
	q.machine.SetFlag(func(f *models.SupervisorFlags) { f.HasPendingQueue = true })
	return mode, nil
}

// chooseMode implements the routing table in §4.4 exactly.
func chooseMode(state models.SupervisorState, queueNonEmpty, steerEnabled, explicitOverride bool) models.QueueMode {
	switch state {
	case models.StateIdle:
		if queueNonEmpty {
			return models.ModeFollowup
		}
		return models.ModeImmediate
	case models.StateRunning, models.StateToolExec:
		if explicitOverride {
			return models.ModeInterrupt
		}
		if steerEnabled {
			return models.ModeSteer
		}
		return models.ModeCollect
	case models.StateSuspended:
		return models.ModeSteerBacklog
	default:
		return models.ModeCollect
	}
}

// DrainSteering pops every queued steering injection, one-at-a-time by
// default ordering (insertion order, highest Priority first), matching
// nexus's SteeringModeOneAtATime default — callers needing "all" semantics
// can simply loop until this returns nil.
func (q *ThreadQueue) DrainSteering() *SteerInjection {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.steering) == 0 {
		return nil
	}
	best := 0
	for i, s := range q.steering {
		if s.Priority > q.steering[best].Priority {
			best = i
		}
	}
	injection := q.steering[best]
	q.steering = append(q.steering[:best], q.steering[best+1:]...)
	if len(q.steering) == 0 {
		q.machine.SetFlag(func(f *models.SupervisorFlags) { f.SteerRequested = false })
	}
	return &injection
}

// OnEnterIdle pops the head of the persisted FIFO queue and reports what to
// do with it (§4.4 "on_enter_IDLE hook pops the head of the queue"). task
// notifications injected by sub-agents are immediate/followup just like any
// other queued message — the distinction lives in the message content, not
// routing.
func (q *ThreadQueue) OnEnterIdle(ctx context.Context) (*models.QueuedMessage, error) {
	msg, err := q.store.PopFront(ctx, q.threadID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		q.machine.SetFlag(func(f *models.SupervisorFlags) { f.HasPendingQueue = false })
		return nil, nil
	}
	pending, err := q.store.HasPending(ctx, q.threadID)
	if err != nil {
		return nil, err
	}
	q.machine.SetFlag(func(f *models.SupervisorFlags) { f.HasPendingQueue = pending })
	return msg, nil
}
