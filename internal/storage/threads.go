package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

const threadTimeLayout = "2006-01-02 15:04:05"

// ThreadStore is CRUD over the threads table, prepared-statement idiom
// from internal/sessions/cockroach.go.
type ThreadStore struct {
	db *sql.DB

	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
}

// NewThreadStore prepares statements against an already-migrated handle.
func NewThreadStore(db *sql.DB) (*ThreadStore, error) {
	s := &ThreadStore{db: db}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsert, `INSERT INTO threads (id, sandbox, cwd, agent, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`},
		{&s.stmtGet, `SELECT id, sandbox, cwd, agent, created_at, updated_at FROM threads WHERE id = ?`},
		{&s.stmtList, `SELECT id, sandbox, cwd, agent, created_at, updated_at FROM threads ORDER BY created_at DESC`},
		{&s.stmtDelete, `DELETE FROM threads WHERE id = ?`},
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
func (s *ThreadStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtGet, s.stmtList, s.stmtDelete} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

// Create inserts a new thread, stamping CreatedAt/UpdatedAt if unset.
func (s *ThreadStore) Create(ctx context.Context, t *models.Thread) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := s.stmtInsert.ExecContext(ctx, t.ID, t.Sandbox, t.Cwd, t.Agent,
		t.CreatedAt.Format(threadTimeLayout), t.UpdatedAt.Format(threadTimeLayout))
	return err
}

// Get loads one thread by id. Returns ErrNotFound if absent.
func (s *ThreadStore) Get(ctx context.Context, id string) (*models.Thread, error) {
	row := s.stmtGet.QueryRowContext(ctx, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns every thread, most recently created first.
func (s *ThreadStore) List(ctx context.Context) ([]*models.Thread, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Thread
	for rows.Next() {
		t, err := scanThreadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes the thread row itself; callers are responsible for the
// resolver-driven cascade (internal/resolver.Resolver.DeleteThread) first.
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	_, err := s.stmtDelete.ExecContext(ctx, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row *sql.Row) (*models.Thread, error) {
	return scanThreadRow(row)
}

func scanThreadRow(row rowScanner) (*models.Thread, error) {
	var t models.Thread
	var sandbox, cwd, agent sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &sandbox, &cwd, &agent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Sandbox = sandbox.String
	t.Cwd = cwd.String
	t.Agent = agent.String
	if parsed, err := time.Parse(threadTimeLayout, createdAt); err == nil {
		t.CreatedAt = parsed
	}
	if parsed, err := time.Parse(threadTimeLayout, updatedAt); err == nil {
		t.UpdatedAt = parsed
	}
	return &t, nil
}
