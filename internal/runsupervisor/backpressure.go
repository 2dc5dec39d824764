package runsupervisor

import (
	"context"
	"sync/atomic"

	"github.com/leon-agent/leon/internal/models"
)

// BackpressureConfig sizes the two lanes a BackpressureSink merges.
type BackpressureConfig struct {
	// HighPriBuffer sizes the lane for non-droppable events (tool
	// lifecycle, status, terminal events). Default: 32.
	HighPriBuffer int
	// LowPriBuffer sizes the lane for droppable text deltas. Default: 256.
	LowPriBuffer int
}

// DefaultBackpressureConfig returns sensible defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighPriBuffer: 32, LowPriBuffer: 256}
}

// BackpressureSink implements two-lane backpressure for the HTTP SSE
// stream feeding off the merged channel: non-droppable events block rather
// than drop, text deltas are dropped once the low-priority lane fills.
// Grounded on internal/agent/event_sink.go's BackpressureSink, retargeted
// from models.AgentEvent to models.RunEvent and from a closed-over
// droppability helper to RunEventType.IsDroppable.
type BackpressureSink struct {
	highPri chan models.RunEvent
	lowPri  chan models.RunEvent
	merged  chan models.RunEvent
	dropped uint64
	closed  uint32
}

// NewBackpressureSink starts the merge goroutine and returns the sink plus
// the channel callers should range over.
func NewBackpressureSink(cfg BackpressureConfig) (*BackpressureSink, <-chan models.RunEvent) {
	if cfg.HighPriBuffer <= 0 {
		cfg.HighPriBuffer = 32
	}
	if cfg.LowPriBuffer <= 0 {
		cfg.LowPriBuffer = 256
	}
	s := &BackpressureSink{
		highPri: make(chan models.RunEvent, cfg.HighPriBuffer),
		lowPri:  make(chan models.RunEvent, cfg.LowPriBuffer),
		merged:  make(chan models.RunEvent, cfg.HighPriBuffer),
	}
	go s.mergeLoop()
	return s, s.merged
}

func (s *BackpressureSink) mergeLoop() {
	defer close(s.merged)
	for {
		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
				continue
			}
			for e := range s.lowPri {
				s.merged <- e
			}
			return
		default:
		}

		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
			} else {
				for e := range s.lowPri {
					s.merged <- e
				}
				return
			}
		case e, ok := <-s.lowPri:
			if ok {
				s.merged <- e
			}
		}
	}
}

// Emit routes the event into its lane. Droppable events are dropped if
// the low-priority lane is full; everything else blocks until space frees
// up or ctx is cancelled, then makes one last attempt so terminal events
// are never silently lost.
func (s *BackpressureSink) Emit(ctx context.Context, e models.RunEvent) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return
	}
	if e.Type.IsDroppable() {
		select {
		case s.lowPri <- e:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
		return
	}
	select {
	case s.highPri <- e:
	case <-ctx.Done():
		select {
		case s.highPri <- e:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
	}
}

// DroppedCount returns the number of events dropped so far: low-priority
// events that found their lane full, plus high-priority events that could
// not be queued once ctx was cancelled.
func (s *BackpressureSink) DroppedCount() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Close stops accepting new events and lets mergeLoop drain what's queued.
func (s *BackpressureSink) Close() {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	close(s.highPri)
	close(s.lowPri)
}
