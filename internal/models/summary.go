package models

import "time"

// Summary is the compression artifact produced by the memory manager (§3
// Summary). At most one is_active=true per thread; older summaries are
// retained inactive for audit.
type Summary struct {
	SummaryID         string    `json:"summary_id"`
	ThreadID          string    `json:"thread_id"`
	SummaryText       string    `json:"summary_text"`
	CompactUpToIndex  int       `json:"compact_up_to_index"`
	CompactedAt       time.Time `json:"compacted_at"`
	IsSplitTurn       bool      `json:"is_split_turn"`
	SplitTurnPrefix   int       `json:"split_turn_prefix,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// Checkpoint is a snapshot of the thread's message history and agent graph
// state (§3 Checkpoint), indexed by (thread_id, checkpoint_id) with parent
// links, supporting time-travel reads.
type Checkpoint struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Messages     []Message `json:"messages"`
	GraphState   []byte    `json:"graph_state,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckpointConfig selects which checkpoint to load/list (§6 Checkpoint
// store interface).
type CheckpointConfig struct {
	ThreadID     string
	CheckpointID string // optional; empty means "latest"
}
