// Package checkpoint implements the checkpoint store interface consumed by
// the producer to snapshot and resume a thread's message history and agent
// graph state (§6 "Checkpoint store").
package checkpoint

import (
	"context"

	"github.com/leon-agent/leon/internal/models"
)

// Store is the checkpoint persistence boundary: get/put/list keyed by
// (thread_id, checkpoint_id), grounded on internal/sessions/store.go's
// Create/Get/... CRUD idiom, narrowed to the three verbs §6 specifies.
type Store interface {
	// Get loads a checkpoint by config. When config.CheckpointID is empty,
	// the latest checkpoint for config.ThreadID is returned. Returns
	// (nil, nil) when none exists.
	Get(ctx context.Context, config models.CheckpointConfig) (*models.Checkpoint, error)

	// Put persists a checkpoint, linking it to its parent when ParentID is
	// set (supports time-travel reads, §3 Checkpoint).
	Put(ctx context.Context, cp *models.Checkpoint) error

	// List returns every checkpoint for config.ThreadID, most recent first.
	List(ctx context.Context, config models.CheckpointConfig) ([]*models.Checkpoint, error)
}
