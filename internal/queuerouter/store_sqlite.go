package queuerouter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

const queueTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore implements Store against the queued_messages table
// (internal/storage.Open's schema), prepared-statement idiom from
// internal/sessions/cockroach.go.
type SQLiteStore struct {
	db *sql.DB

	stmtInsert  *sql.Stmt
	stmtOldest  *sql.Stmt
	stmtDelete  *sql.Stmt
	stmtHasAny  *sql.Stmt
}

// NewSQLiteStore prepares statements against an already-migrated handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsert, `INSERT INTO queued_messages (id, thread_id, content, created_at, mode) VALUES (?, ?, ?, ?, ?)`},
		{&s.stmtOldest, `SELECT id, thread_id, content, created_at, mode FROM queued_messages WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`},
		{&s.stmtDelete, `DELETE FROM queued_messages WHERE id = ?`},
		{&s.stmtHasAny, `SELECT EXISTS(SELECT 1 FROM queued_messages WHERE thread_id = ?)`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.text)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("queuerouter: prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases prepared statements.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtOldest, s.stmtDelete, s.stmtHasAny} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

// Enqueue implements Store.
func (s *SQLiteStore) Enqueue(ctx context.Context, msg *models.QueuedMessage) error {
	_, err := s.stmtInsert.ExecContext(ctx, msg.ID, msg.ThreadID, msg.Content,
		msg.CreatedAt.Format(queueTimeLayout), string(msg.Mode))
	return err
}

// PopFront implements Store: FIFO within a thread (§4.4 "strictly FIFO").
// Returns (nil, nil) when the queue is empty.
func (s *SQLiteStore) PopFront(ctx context.Context, threadID string) (*models.QueuedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.StmtContext(ctx, s.stmtOldest).QueryRowContext(ctx, threadID)
	var msg models.QueuedMessage
	var createdAt, mode string
	if err := row.Scan(&msg.ID, &msg.ThreadID, &msg.Content, &createdAt, &mode); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	msg.Mode = models.QueueMode(mode)
	if t, err := time.Parse(queueTimeLayout, createdAt); err == nil {
		msg.CreatedAt = t
	}

	if _, err := tx.StmtContext(ctx, s.stmtDelete).ExecContext(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("queuerouter: delete popped message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HasPending implements Store.
func (s *SQLiteStore) HasPending(ctx context.Context, threadID string) (bool, error) {
	var exists int
	if err := s.stmtHasAny.QueryRowContext(ctx, threadID).Scan(&exists); err != nil {
		return false, err
	}
	return exists != 0, nil
}
