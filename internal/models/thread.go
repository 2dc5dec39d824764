package models

import "time"

// Thread is the stable identity for a conversation (§3 Thread). It owns a
// message history (via the checkpoint store), a resource binding (via the
// resolver), a queue, at most one active run, and a run-event log.
type Thread struct {
	ID        string    `json:"id"`
	Sandbox   string    `json:"sandbox,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusDone      RunStatus = "done"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one execution of the agent loop for one user message (§3 Run).
type Run struct {
	RunID        string     `json:"run_id"`
	ThreadID     string     `json:"thread_id"`
	InputMessage string     `json:"input_message"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorText    string     `json:"error_text,omitempty"`
}
