package runsupervisor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leon-agent/leon/internal/models"
)

// EventLog is the durable, append-only store backing the run_events table
// (§6 event log). It is the system of record; RunEventBuffer is a
// best-effort fast path layered on top of it for live observers.
type EventLog struct {
	db *sql.DB
}

// NewEventLog wraps an already-opened database handle (see
// internal/storage.Open).
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Append durably persists one event and assigns it its sqlite-autoincrement
// sequence number, which becomes the event's canonical Seq (§4.1 step 5:
// "call emit() -- synchronously log, then buffer/publish").
func (l *EventLog) Append(ctx context.Context, e *models.RunEvent) error {
	res, err := l.db.ExecContext(ctx, `
INSERT INTO run_events (thread_id, run_id, event_type, data, message_id, created_at)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
		e.ThreadID, e.RunID, string(e.Type), string(e.Data), e.MessageID, e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("runsupervisor: append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("runsupervisor: read event seq: %w", err)
	}
	e.Seq = uint64(seq)
	return nil
}

// Since returns every event for (threadID, runID) with Seq > afterSeq, in
// order, from durable storage. Observers fall back to this when the live
// ring has already evicted the range they need.
func (l *EventLog) Since(ctx context.Context, threadID, runID string, afterSeq uint64) ([]models.RunEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT seq, thread_id, run_id, event_type, data, COALESCE(message_id, ''), created_at
FROM run_events
WHERE thread_id = ? AND run_id = ? AND seq > ?
ORDER BY seq ASC`, threadID, runID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("runsupervisor: query events: %w", err)
	}
	defer rows.Close()

	var out []models.RunEvent
	for rows.Next() {
		var e models.RunEvent
		var data string
		var createdAt string
		if err := rows.Scan(&e.Seq, &e.ThreadID, &e.RunID, &e.Type, &data, &e.MessageID, &createdAt); err != nil {
			return nil, fmt.Errorf("runsupervisor: scan event: %w", err)
		}
		e.Data = []byte(data)
		ts, err := parseTimeLayout(createdAt)
		if err != nil {
			return nil, fmt.Errorf("runsupervisor: parse event timestamp: %w", err)
		}
		e.CreatedAt = ts
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastSeq returns the highest Seq logged for (threadID, runID), or 0 if
// none exists yet.
func (l *EventLog) LastSeq(ctx context.Context, threadID, runID string) (uint64, error) {
	var seq sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
SELECT MAX(seq) FROM run_events WHERE thread_id = ? AND run_id = ?`, threadID, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("runsupervisor: query last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
