// Package storage owns the single embedded database file Leon persists to
// (§6 Environment: LEON_HOME/leon.db) plus an optional read-only Postgres
// mirror for cross-host operator views.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by store lookups when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by store inserts on a unique-key conflict.
var ErrAlreadyExists = errors.New("already exists")

// schema creates every table the core subsystems need. It is intentionally
// one flat schema rather than a migration chain: Leon ships as a single
// binary against a single embedded file and has no multi-version rollout to
// coordinate (§1 Non-goals: no cross-host durability).
const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	sandbox TEXT,
	cwd TEXT,
	agent TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	input_message TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	error_text TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id, started_at);

CREATE TABLE IF NOT EXISTS run_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data TEXT NOT NULL,
	message_id TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_run_events_lookup ON run_events(thread_id, run_id, seq);

CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	parent_id TEXT,
	messages TEXT NOT NULL,
	graph_state BLOB,
	created_at TEXT NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, created_at);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	compact_up_to_index INTEGER NOT NULL,
	compacted_at TEXT NOT NULL,
	is_split_turn INTEGER NOT NULL DEFAULT 0,
	split_turn_prefix INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_thread ON summaries(thread_id, is_active);

CREATE TABLE IF NOT EXISTS queued_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	mode TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_thread ON queued_messages(thread_id, created_at);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	policy TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	ended_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_thread ON sessions(thread_id, active);

CREATE TABLE IF NOT EXISTS abstract_terminals (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	cwd TEXT NOT NULL,
	env_delta TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	hydration_blob BLOB,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sandbox_leases (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	instance_id TEXT,
	desired_state TEXT NOT NULL,
	observed_state TEXT NOT NULL,
	last_error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leases_instance ON sandbox_leases(provider, instance_id);

CREATE TABLE IF NOT EXISTS lease_events (
	id TEXT PRIMARY KEY,
	lease_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lease_events_lease ON lease_events(lease_id, created_at);
`

// Config configures the embedded sqlite handle.
type Config struct {
	// Path is the filesystem path to leon.db (§6 Environment: defaults to
	// $LEON_HOME/leon.db).
	Path string

	// BusyTimeout bounds how long a writer waits for the database lock
	// before failing (§5 "Shared-resource policy": 30s default).
	BusyTimeout time.Duration

	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns sensible defaults, grounded on
// internal/sessions/cockroach.go's DefaultCockroachConfig idiom.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		BusyTimeout:  30 * time.Second,
		MaxOpenConns: 8,
		MaxIdleConns: 4,
	}
}

// Open opens (creating if needed) the embedded database, enables
// write-ahead logging, and applies the schema. WAL + busy_timeout let the
// event log's single writer and many readers coexist without lock errors
// (§5 "Shared-resource policy").
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: db path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return db, nil
}
