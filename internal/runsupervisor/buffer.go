// Package runsupervisor drives one agent run end to end: it owns the
// per-run event sequence, fans events out to live observers with
// resume-cursor semantics, durably logs every event, and tracks aggregate
// run statistics (§4.1 Run Supervisor & Event Fan-Out).
package runsupervisor

import (
	"context"
	"sync"

	"github.com/leon-agent/leon/internal/models"
)

// DefaultRingCapacity is the ring size used when no positive capacity is
// configured. No environment variable overrides it.
const DefaultRingCapacity = 1024

// RunEventBuffer is a bounded ring of recently emitted events for one run,
// plus a broadcast mechanism so multiple Observe callers can each resume
// from their own last-seen sequence number. At capacity, Append evicts the
// oldest entry; evicted events stay in the durable log, and Since/WaitNext
// report a gap when a caller still needed one of them (§4.1 "Failure
// semantics").
type RunEventBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cap      int
	items    []models.RunEvent // ring storage, oldest-first by insertion
	start    uint64            // number of entries evicted so far
	closed   bool
	lastSeq  uint64
}

// NewRunEventBuffer creates a ring with the given capacity. A non-positive
// capacity falls back to DefaultRingCapacity.
func NewRunEventBuffer(capacity int) *RunEventBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	b := &RunEventBuffer{
		cap:   capacity,
		items: make([]models.RunEvent, 0, capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append adds an event to the ring, evicting the oldest entry if at
// capacity, and wakes any blocked observers.
func (b *RunEventBuffer) Append(e models.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.items) == b.cap {
		b.items = b.items[1:]
		b.start++
	}
	b.items = append(b.items, e)
	b.lastSeq = e.Seq
	b.cond.Broadcast()
}

// Close marks the buffer closed; blocked Observe calls wake and return.
func (b *RunEventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Since returns every buffered event with Seq > afterSeq still held in the
// ring, plus a bool reporting whether the ring has already evicted events
// the caller needed (the caller should then fall back to the durable log
// for the gap).
func (b *RunEventBuffer) Since(afterSeq uint64) (events []models.RunEvent, gapped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinceLocked(afterSeq)
}

// WaitNext blocks until an event with Seq > afterSeq is available, the
// buffer is closed, or ctx is cancelled. It returns the newly visible
// events (possibly empty if the buffer closed with nothing new) and
// whether the buffer is now closed.
func (b *RunEventBuffer) WaitNext(ctx context.Context, afterSeq uint64) (events []models.RunEvent, gapped, closed bool) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		close(done)
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		select {
		case <-done:
			return nil, false, b.closed
		default:
		}
		if b.lastSeq > afterSeq || b.closed {
			break
		}
		b.cond.Wait()
	}
	events, gapped = b.sinceLocked(afterSeq)
	return events, gapped, b.closed
}

func (b *RunEventBuffer) sinceLocked(afterSeq uint64) (events []models.RunEvent, gapped bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	oldest := b.items[0].Seq
	gapped = b.start > 0 && afterSeq+1 < oldest
	out := make([]models.RunEvent, 0, len(b.items))
	for _, e := range b.items {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, gapped
}
