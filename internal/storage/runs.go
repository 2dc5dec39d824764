package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

// RunStore is CRUD over the runs table, prepared-statement idiom matching
// ThreadStore.
type RunStore struct {
	db *sql.DB

	stmtInsert      *sql.Stmt
	stmtGet         *sql.Stmt
	stmtListByThread *sql.Stmt
	stmtUpdateStatus *sql.Stmt
}

// NewRunStore prepares statements against an already-migrated handle.
func NewRunStore(db *sql.DB) (*RunStore, error) {
	s := &RunStore{db: db}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsert, `INSERT INTO runs (run_id, thread_id, input_message, started_at, finished_at, status, error_text) VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&s.stmtGet, `SELECT run_id, thread_id, input_message, started_at, finished_at, status, error_text FROM runs WHERE run_id = ?`},
		{&s.stmtListByThread, `SELECT run_id, thread_id, input_message, started_at, finished_at, status, error_text FROM runs WHERE thread_id = ? ORDER BY started_at DESC, rowid DESC`},
		{&s.stmtUpdateStatus, `UPDATE runs SET status = ?, finished_at = ?, error_text = ? WHERE run_id = ?`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.text)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("storage: prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases prepared statements.
func (s *RunStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtGet, s.stmtListByThread, s.stmtUpdateStatus} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

// Create inserts a new run row, stamping StartedAt if unset.
func (s *RunStore) Create(ctx context.Context, r *models.Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	var finishedAt sql.NullString
	if r.FinishedAt != nil {
		finishedAt = sql.NullString{String: r.FinishedAt.Format(threadTimeLayout), Valid: true}
	}
	_, err := s.stmtInsert.ExecContext(ctx, r.RunID, r.ThreadID, r.InputMessage,
		r.StartedAt.Format(threadTimeLayout), finishedAt, string(r.Status), r.ErrorText)
	return err
}

// Get loads one run by id. Returns ErrNotFound if absent.
func (s *RunStore) Get(ctx context.Context, runID string) (*models.Run, error) {
	row := s.stmtGet.QueryRowContext(ctx, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// ListByThread returns every run for a thread, most recently started first.
func (s *RunStore) ListByThread(ctx context.Context, threadID string) ([]*models.Run, error) {
	rows, err := s.stmtListByThread.QueryContext(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a run to a terminal or intermediate status,
// recording finishedAt/errorText (§5.1 run lifecycle: running -> done|error|cancelled).
func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status models.RunStatus, finishedAt *time.Time, errorText string) error {
	var finished sql.NullString
	if finishedAt != nil {
		finished = sql.NullString{String: finishedAt.Format(threadTimeLayout), Valid: true}
	}
	result, err := s.stmtUpdateStatus.ExecContext(ctx, string(status), finished, errorText, runID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(row *sql.Row) (*models.Run, error) {
	return scanRunRow(row)
}

func scanRunRow(row rowScanner) (*models.Run, error) {
	var r models.Run
	var status string
	var startedAt string
	var finishedAt, errorText sql.NullString
	if err := row.Scan(&r.RunID, &r.ThreadID, &r.InputMessage, &startedAt, &finishedAt, &status, &errorText); err != nil {
		return nil, err
	}
	r.Status = models.RunStatus(status)
	r.ErrorText = errorText.String
	if parsed, err := time.Parse(threadTimeLayout, startedAt); err == nil {
		r.StartedAt = parsed
	}
	if finishedAt.Valid {
		if parsed, err := time.Parse(threadTimeLayout, finishedAt.String); err == nil {
			r.FinishedAt = &parsed
		}
	}
	return &r, nil
}
