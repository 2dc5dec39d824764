package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

const checkpointTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore implements Store against the checkpoints table, prepared
// statement idiom from internal/sessions/cockroach.go.
type SQLiteStore struct {
	db *sql.DB

	stmtInsert       *sql.Stmt
	stmtGetByID      *sql.Stmt
	stmtGetLatest    *sql.Stmt
	stmtListByThread *sql.Stmt
}

// NewSQLiteStore prepares statements against an already-migrated handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsert, `INSERT INTO checkpoints (thread_id, checkpoint_id, parent_id, messages, graph_state, created_at) VALUES (?, ?, ?, ?, ?, ?)`},
		{&s.stmtGetByID, `SELECT thread_id, checkpoint_id, parent_id, messages, graph_state, created_at FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`},
		{&s.stmtGetLatest, `SELECT thread_id, checkpoint_id, parent_id, messages, graph_state, created_at FROM checkpoints WHERE thread_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`},
		{&s.stmtListByThread, `SELECT thread_id, checkpoint_id, parent_id, messages, graph_state, created_at FROM checkpoints WHERE thread_id = ? ORDER BY created_at DESC, rowid DESC`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.text)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("checkpoint: prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases prepared statements.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtGetByID, s.stmtGetLatest, s.stmtListByThread} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, config models.CheckpointConfig) (*models.Checkpoint, error) {
	var row *sql.Row
	if config.CheckpointID == "" {
		row = s.stmtGetLatest.QueryRowContext(ctx, config.ThreadID)
	} else {
		row = s.stmtGetByID.QueryRowContext(ctx, config.ThreadID, config.CheckpointID)
	}
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cp, err
}

func scanCheckpoint(row *sql.Row) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var parentID sql.NullString
	var messagesJSON string
	var graphState []byte
	var createdAt string
	if err := row.Scan(&cp.ThreadID, &cp.CheckpointID, &parentID, &messagesJSON, &graphState, &createdAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		cp.ParentID = parentID.String
	}
	if err := json.Unmarshal([]byte(messagesJSON), &cp.Messages); err != nil {
		return nil, fmt.Errorf("checkpoint: decode messages: %w", err)
	}
	cp.GraphState = graphState
	if t, err := time.Parse(checkpointTimeLayout, createdAt); err == nil {
		cp.CreatedAt = t
	}
	return &cp, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, cp *models.Checkpoint) error {
	messagesJSON, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("checkpoint: encode messages: %w", err)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	var parentID any
	if cp.ParentID != "" {
		parentID = cp.ParentID
	}
	_, err = s.stmtInsert.ExecContext(ctx, cp.ThreadID, cp.CheckpointID, parentID,
		string(messagesJSON), cp.GraphState, cp.CreatedAt.Format(checkpointTimeLayout))
	return err
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, config models.CheckpointConfig) ([]*models.Checkpoint, error) {
	rows, err := s.stmtListByThread.QueryContext(ctx, config.ThreadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		var parentID sql.NullString
		var messagesJSON string
		var graphState []byte
		var createdAt string
		if err := rows.Scan(&cp.ThreadID, &cp.CheckpointID, &parentID, &messagesJSON, &graphState, &createdAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			cp.ParentID = parentID.String
		}
		if err := json.Unmarshal([]byte(messagesJSON), &cp.Messages); err != nil {
			return nil, fmt.Errorf("checkpoint: decode messages: %w", err)
		}
		cp.GraphState = graphState
		if t, err := time.Parse(checkpointTimeLayout, createdAt); err == nil {
			cp.CreatedAt = t
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}
