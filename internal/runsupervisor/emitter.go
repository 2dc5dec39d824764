package runsupervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

// Emitter builds and durably records RunEvents for one run, then publishes
// them to the live ring for Observe callers. Grounded on the
// EventEmitter.base/nextSeq/emit shape, adapted so that the durable log --
// not an atomic counter -- assigns the canonical sequence number (§4.1 step
// 5: log first, publish second).
type Emitter struct {
	threadID string
	runID    string

	log    *EventLog
	ring   *RunEventBuffer
	sink   *BackpressureSink
	stats  *StatsCollector
}

// NewEmitter wires together the durable log, live ring, and backpressure
// sink for one run.
func NewEmitter(threadID, runID string, log *EventLog, ring *RunEventBuffer, sink *BackpressureSink) *Emitter {
	return &Emitter{
		threadID: threadID,
		runID:    runID,
		log:      log,
		ring:     ring,
		sink:     sink,
		stats:    NewStatsCollector(runID),
	}
}

// emit logs the event durably (assigning its Seq), then fans it out to the
// ring, the backpressure sink, and the stats collector. Logging failures
// are returned so the caller can decide whether to fail the run; fan-out
// itself never fails the caller -- per §4.1 "Failure semantics" the
// durable log is what matters, not live observers.
func (em *Emitter) emit(ctx context.Context, t models.RunEventType, data any, messageID string) (models.RunEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return models.RunEvent{}, err
	}
	e := models.RunEvent{
		ThreadID:  em.threadID,
		RunID:     em.runID,
		Type:      t,
		Data:      payload,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	if em.log != nil {
		if err := em.log.Append(ctx, &e); err != nil {
			return models.RunEvent{}, err
		}
	}
	if em.ring != nil {
		em.ring.Append(e)
	}
	if em.sink != nil {
		em.sink.Emit(ctx, e)
	}
	if em.stats != nil {
		em.stats.OnEvent(e)
	}
	return e, nil
}

// Text emits a `text` delta event (droppable under backpressure).
func (em *Emitter) Text(ctx context.Context, messageID, delta string) error {
	_, err := em.emit(ctx, models.RunEventText, models.TextEventData{Delta: delta}, messageID)
	return err
}

// ToolCall emits a `tool_call` event.
func (em *Emitter) ToolCall(ctx context.Context, call models.ToolCall) error {
	_, err := em.emit(ctx, models.RunEventToolCall, models.ToolCallEventData{
		CallID: call.ID,
		Name:   call.Name,
		Args:   call.Input,
	}, "")
	return err
}

// ToolResult emits a `tool_result` event.
func (em *Emitter) ToolResult(ctx context.Context, result models.ToolResult, name string, elapsed time.Duration) error {
	_, err := em.emit(ctx, models.RunEventToolResult, models.ToolResultEventData{
		CallID:  result.ToolCallID,
		Name:    name,
		Success: !result.IsError,
		Result:  result.Content,
		Elapsed: elapsed,
	}, "")
	return err
}

// Status emits a `status` event reflecting the supervisor's runtime_status
// snapshot (§4.1 RuntimeStatus, §4.3 cost accounting).
func (em *Emitter) Status(ctx context.Context, data models.StatusEventData) error {
	data.LastSeq = em.stats.LastSeq()
	_, err := em.emit(ctx, models.RunEventStatus, data, "")
	return err
}

// Done emits the terminal `done` event.
func (em *Emitter) Done(ctx context.Context) error {
	_, err := em.emit(ctx, models.RunEventDone, struct{}{}, "")
	if em.ring != nil {
		em.ring.Close()
	}
	return err
}

// Error emits the terminal `error` event.
func (em *Emitter) Error(ctx context.Context, message, kind string, retriable bool) error {
	_, err := em.emit(ctx, models.RunEventError, models.ErrorEventData{
		Message:   message,
		Kind:      kind,
		Retriable: retriable,
	}, "")
	if em.ring != nil {
		em.ring.Close()
	}
	return err
}

// Cancelled emits the terminal `cancelled` event.
func (em *Emitter) Cancelled(ctx context.Context) error {
	_, err := em.emit(ctx, models.RunEventCancelled, struct{}{}, "")
	if em.ring != nil {
		em.ring.Close()
	}
	return err
}

// Stats returns a snapshot of the run's accumulated statistics.
func (em *Emitter) Stats() RunStats {
	return em.stats.Stats()
}
