package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresMirrorConfig configures an optional, best-effort cross-host mirror
// of the run-event log for the operator dashboard/CLI. It is never the
// system of record (§1 Non-goals: "does not guarantee cross-host
// durability") — the embedded sqlite file always is.
type PostgresMirrorConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPostgresMirrorConfig mirrors CockroachStore's default idiom from
// the teacher repository, retargeted at a plain Postgres-compatible DSN.
func DefaultPostgresMirrorConfig() PostgresMirrorConfig {
	return PostgresMirrorConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "leon",
		Database:        "leon_mirror",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// OpenPostgresMirror connects to the mirror database and ensures its
// (append-only, best-effort) run_events table exists. Failures to reach the
// mirror are non-fatal to the caller — it is an observability convenience,
// not part of the durability contract.
func OpenPostgresMirror(ctx context.Context, cfg PostgresMirrorConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres mirror: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres mirror: %w", err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS run_events_mirror (
	seq BIGINT NOT NULL,
	thread_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data JSONB NOT NULL,
	message_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (thread_id, run_id, seq)
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ensure mirror schema: %w", err)
	}
	return db, nil
}

// MirrorEvent appends one event to the mirror. Errors are the caller's to
// log-and-ignore; the mirror is best-effort.
func MirrorEvent(ctx context.Context, db *sql.DB, threadID, runID string, seq uint64, eventType, data, messageID string, createdAt time.Time) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO run_events_mirror (seq, thread_id, run_id, event_type, data, message_id, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (thread_id, run_id, seq) DO NOTHING`,
		seq, threadID, runID, eventType, data, messageID, createdAt)
	return err
}
