package models

import (
	"encoding/json"
	"time"
)

// RunEventType identifies the kind of run event (§3 RunEvent, §6 event log).
type RunEventType string

const (
	RunEventText         RunEventType = "text"
	RunEventToolCall     RunEventType = "tool_call"
	RunEventToolResult   RunEventType = "tool_result"
	RunEventStatus       RunEventType = "status"
	RunEventDone         RunEventType = "done"
	RunEventError        RunEventType = "error"
	RunEventCancelled    RunEventType = "cancelled"

	// Sub-agent/task namespaced variants (§3, §6).
	RunEventTaskStart           RunEventType = "task_start"
	RunEventTaskText            RunEventType = "task_text"
	RunEventTaskToolCall        RunEventType = "task_tool_call"
	RunEventTaskToolResult      RunEventType = "task_tool_result"
	RunEventTaskDone            RunEventType = "task_done"
	RunEventTaskError           RunEventType = "task_error"
	RunEventSubagentTaskStart   RunEventType = "subagent_task_start"
	RunEventSubagentTaskText    RunEventType = "subagent_task_text"
	RunEventSubagentTaskDone    RunEventType = "subagent_task_done"
	RunEventSubagentTaskError   RunEventType = "subagent_task_error"
)

// IsTerminal reports whether this event type ends a run's stream (§4.1).
func (t RunEventType) IsTerminal() bool {
	switch t {
	case RunEventDone, RunEventError, RunEventCancelled:
		return true
	default:
		return false
	}
}

// IsDroppable reports whether the BackpressureSink may drop this event type
// when its low-priority lane is full (§4.1 "Failure semantics"). Every
// event is written to the durable log and the ring before it reaches the
// sink, so a drop affects only the sink's consumer.
func (t RunEventType) IsDroppable() bool {
	switch t {
	case RunEventText:
		return true
	default:
		return false
	}
}

// RunEvent is the append-only unit persisted to the event log and streamed
// to observers (§3 RunEvent, §6 event log table).
type RunEvent struct {
	Seq       uint64          `json:"seq"`
	ThreadID  string          `json:"thread_id"`
	RunID     string          `json:"run_id"`
	Type      RunEventType    `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	MessageID string          `json:"message_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TextEventData is the `data` payload for a `text` event.
type TextEventData struct {
	Delta string `json:"delta"`
}

// ToolCallEventData is the `data` payload for a `tool_call` event.
type ToolCallEventData struct {
	CallID string          `json:"call_id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// ToolResultEventData is the `data` payload for a `tool_result` event.
type ToolResultEventData struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Result   string        `json:"result,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
}

// StatusEventData is the `data` payload for a `status` event (§4.1
// runtime_status, §4.3 cost accounting).
type StatusEventData struct {
	State       string  `json:"state"`
	Flags       []string `json:"flags,omitempty"`
	Tokens      int     `json:"tokens"`
	ContextUsed float64 `json:"context_used_pct"`
	NearLimit   bool    `json:"near_limit"`
	CurrentTool string  `json:"current_tool,omitempty"`
	LastSeq     uint64  `json:"last_seq"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
}

// ErrorEventData is the `data` payload for an `error` event (§7).
type ErrorEventData struct {
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	Retriable bool   `json:"retriable"`
}
