package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leon-agent/leon/internal/models"
)

// SQLiteStore implements Store against Leon's embedded database (§6).
// Prepared-statement idiom grounded on internal/sessions/cockroach.go's
// CockroachStore.
type SQLiteStore struct {
	db *sql.DB

	stmtInsertSession *sql.Stmt
	stmtGetSessionByThread *sql.Stmt
	stmtInsertTerminal *sql.Stmt
	stmtGetTerminal    *sql.Stmt
	stmtUpdateTerminal *sql.Stmt
	stmtInsertLease    *sql.Stmt
	stmtGetLease       *sql.Stmt
	stmtGetLeaseBySession *sql.Stmt
	stmtUpdateLease    *sql.Stmt
	stmtInsertLeaseEvent *sql.Stmt
}

// NewSQLiteStore prepares every statement the resolver needs against an
// already-opened, already-migrated database handle (internal/storage.Open).
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsertSession, `INSERT INTO sessions (id, thread_id, policy, active, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`},
		{&s.stmtGetSessionByThread, `SELECT id, thread_id, policy, active, created_at, updated_at, ended_at FROM sessions WHERE thread_id = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`},
		{&s.stmtInsertTerminal, `INSERT INTO abstract_terminals (id, session_id, cwd, env_delta, version, hydration_blob, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`},
		{&s.stmtGetTerminal, `SELECT id, session_id, cwd, env_delta, version, hydration_blob, updated_at FROM abstract_terminals WHERE session_id = ?`},
		{&s.stmtUpdateTerminal, `UPDATE abstract_terminals SET cwd = ?, env_delta = ?, version = ?, hydration_blob = ?, updated_at = ? WHERE id = ?`},
		{&s.stmtInsertLease, `INSERT INTO sandbox_leases (id, session_id, provider, instance_id, desired_state, observed_state, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?, ?, ?)`},
		{&s.stmtGetLease, `SELECT id, session_id, provider, COALESCE(instance_id, ''), desired_state, observed_state, COALESCE(last_error, ''), created_at, updated_at FROM sandbox_leases WHERE id = ?`},
		{&s.stmtGetLeaseBySession, `SELECT id, session_id, provider, COALESCE(instance_id, ''), desired_state, observed_state, COALESCE(last_error, ''), created_at, updated_at FROM sandbox_leases WHERE session_id = ?`},
		{&s.stmtUpdateLease, `UPDATE sandbox_leases SET instance_id = ?, desired_state = ?, observed_state = ?, last_error = ?, updated_at = ? WHERE id = ?`},
		{&s.stmtInsertLeaseEvent, `INSERT INTO lease_events (id, lease_id, provider, type, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.text)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("resolver: prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases every prepared statement.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtInsertSession, s.stmtGetSessionByThread, s.stmtInsertTerminal,
		s.stmtGetTerminal, s.stmtUpdateTerminal, s.stmtInsertLease,
		s.stmtGetLease, s.stmtGetLeaseBySession, s.stmtUpdateLease, s.stmtInsertLeaseEvent,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// GetOrCreateSession implements Store.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, threadID string, policy models.SessionPolicy) (*models.ChatSession, error) {
	row := s.stmtGetSessionByThread.QueryRowContext(ctx, threadID)
	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	if _, err := s.stmtInsertSession.ExecContext(ctx, id, threadID, string(policyJSON), now.Format(sqliteTimeLayout), now.Format(sqliteTimeLayout)); err != nil {
		return nil, fmt.Errorf("resolver: insert session: %w", err)
	}
	return &models.ChatSession{ID: id, ThreadID: threadID, Policy: policy, Active: true, CreatedAt: now, UpdatedAt: now}, nil
}

func scanSession(row *sql.Row) (*models.ChatSession, error) {
	var sess models.ChatSession
	var policyJSON, createdAt, updatedAt string
	var endedAt sql.NullString
	var active int
	if err := row.Scan(&sess.ID, &sess.ThreadID, &policyJSON, &active, &createdAt, &updatedAt, &endedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(policyJSON), &sess.Policy); err != nil {
		return nil, fmt.Errorf("resolver: decode session policy: %w", err)
	}
	sess.Active = active != 0
	t, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = t
	if t, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
		sess.UpdatedAt = t
	}
	if endedAt.Valid {
		if t, err := time.Parse(sqliteTimeLayout, endedAt.String); err == nil {
			sess.EndedAt = &t
		}
	}
	return &sess, nil
}

// GetOrCreateTerminal implements Store.
func (s *SQLiteStore) GetOrCreateTerminal(ctx context.Context, sessionID string, defaultCwd string) (*models.AbstractTerminal, error) {
	row := s.stmtGetTerminal.QueryRowContext(ctx, sessionID)
	term, err := scanTerminal(row)
	if err == nil {
		return term, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	envDeltaJSON, _ := json.Marshal(map[string]string{})
	if _, err := s.stmtInsertTerminal.ExecContext(ctx, id, sessionID, defaultCwd, string(envDeltaJSON), []byte(nil), now.Format(sqliteTimeLayout)); err != nil {
		return nil, fmt.Errorf("resolver: insert terminal: %w", err)
	}
	return &models.AbstractTerminal{ID: id, SessionID: sessionID, Cwd: defaultCwd, EnvDelta: map[string]string{}, Version: 0, UpdatedAt: now}, nil
}

func scanTerminal(row *sql.Row) (*models.AbstractTerminal, error) {
	var t models.AbstractTerminal
	var envDeltaJSON, updatedAt string
	var blob []byte
	if err := row.Scan(&t.ID, &t.SessionID, &t.Cwd, &envDeltaJSON, &t.Version, &blob, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(envDeltaJSON), &t.EnvDelta); err != nil {
		return nil, fmt.Errorf("resolver: decode env delta: %w", err)
	}
	t.HydrationBlob = blob
	if parsed, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
		t.UpdatedAt = parsed
	}
	return &t, nil
}

// UpdateTerminal implements Store.
func (s *SQLiteStore) UpdateTerminal(ctx context.Context, t *models.AbstractTerminal) error {
	envDeltaJSON, err := json.Marshal(t.EnvDelta)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	t.Version++
	_, err = s.stmtUpdateTerminal.ExecContext(ctx, t.Cwd, string(envDeltaJSON), t.Version, t.HydrationBlob, t.UpdatedAt.Format(sqliteTimeLayout), t.ID)
	return err
}

// GetOrCreateLease implements Store.
func (s *SQLiteStore) GetOrCreateLease(ctx context.Context, sessionID, provider string) (*models.SandboxLease, error) {
	row := s.stmtGetLeaseBySession.QueryRowContext(ctx, sessionID)
	lease, err := scanLease(row)
	if err == nil {
		return lease, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := s.stmtInsertLease.ExecContext(ctx, id, sessionID, provider, string(models.DesiredActive), string(models.ObservedUnknown), now.Format(sqliteTimeLayout), now.Format(sqliteTimeLayout)); err != nil {
		return nil, fmt.Errorf("resolver: insert lease: %w", err)
	}
	return &models.SandboxLease{
		ID: id, SessionID: sessionID, Provider: provider,
		DesiredState: models.DesiredActive, ObservedState: models.ObservedUnknown,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func scanLease(row *sql.Row) (*models.SandboxLease, error) {
	var l models.SandboxLease
	var desired, observed, createdAt, updatedAt string
	if err := row.Scan(&l.ID, &l.SessionID, &l.Provider, &l.InstanceID, &desired, &observed, &l.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.DesiredState = models.SandboxDesiredState(desired)
	l.ObservedState = models.SandboxObservedState(observed)
	if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
		l.CreatedAt = t
	}
	if t, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
		l.UpdatedAt = t
	}
	return &l, nil
}

// GetLease implements Store.
func (s *SQLiteStore) GetLease(ctx context.Context, leaseID string) (*models.SandboxLease, error) {
	row := s.stmtGetLease.QueryRowContext(ctx, leaseID)
	return scanLease(row)
}

// LeaseBySession implements Store.
func (s *SQLiteStore) LeaseBySession(ctx context.Context, sessionID string) (*models.SandboxLease, error) {
	row := s.stmtGetLeaseBySession.QueryRowContext(ctx, sessionID)
	return scanLease(row)
}

// UpdateLease implements Store.
func (s *SQLiteStore) UpdateLease(ctx context.Context, l *models.SandboxLease) error {
	_, err := s.stmtUpdateLease.ExecContext(ctx, l.InstanceID, string(l.DesiredState), string(l.ObservedState), l.LastError, l.UpdatedAt.Format(sqliteTimeLayout), l.ID)
	return err
}

// RecordLeaseEvent implements Store.
func (s *SQLiteStore) RecordLeaseEvent(ctx context.Context, e *models.LeaseEvent) error {
	_, err := s.stmtInsertLeaseEvent.ExecContext(ctx, e.ID, e.LeaseID, e.Provider, e.Type, e.Payload, e.CreatedAt.Format(sqliteTimeLayout))
	return err
}

// SessionsForThread implements Store.
func (s *SQLiteStore) SessionsForThread(ctx context.Context, threadID string) ([]*models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, thread_id, policy, active, created_at, updated_at, ended_at FROM sessions WHERE thread_id = ?`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		var sess models.ChatSession
		var policyJSON, createdAt, updatedAt string
		var endedAt sql.NullString
		var active int
		if err := rows.Scan(&sess.ID, &sess.ThreadID, &policyJSON, &active, &createdAt, &updatedAt, &endedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(policyJSON), &sess.Policy)
		sess.Active = active != 0
		if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
			sess.CreatedAt = t
		}
		if t, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
			sess.UpdatedAt = t
		}
		if endedAt.Valid {
			if t, err := time.Parse(sqliteTimeLayout, endedAt.String); err == nil {
				sess.EndedAt = &t
			}
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// ListNonConverged implements Store.
func (s *SQLiteStore) ListNonConverged(ctx context.Context) ([]*models.SandboxLease, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, provider, COALESCE(instance_id, ''), desired_state, observed_state, COALESCE(last_error, ''), created_at, updated_at
FROM sandbox_leases
WHERE observed_state != desired_state AND observed_state != 'error'`)
	if err != nil {
		return nil, err
	}
	return scanLeaseRows(rows)
}

// ListLeasesWithInstance implements Store.
func (s *SQLiteStore) ListLeasesWithInstance(ctx context.Context) ([]*models.SandboxLease, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, provider, COALESCE(instance_id, ''), desired_state, observed_state, COALESCE(last_error, ''), created_at, updated_at
FROM sandbox_leases
WHERE instance_id IS NOT NULL AND instance_id != ''`)
	if err != nil {
		return nil, err
	}
	return scanLeaseRows(rows)
}

func scanLeaseRows(rows *sql.Rows) ([]*models.SandboxLease, error) {
	defer rows.Close()
	var out []*models.SandboxLease
	for rows.Next() {
		var l models.SandboxLease
		var desired, observed, createdAt, updatedAt string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Provider, &l.InstanceID, &desired, &observed, &l.LastError, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		l.DesiredState = models.SandboxDesiredState(desired)
		l.ObservedState = models.SandboxObservedState(observed)
		if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
			l.CreatedAt = t
		}
		if t, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
			l.UpdatedAt = t
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteThreadCascade implements Store, dropping rows in one transaction in
// this order: run events -> runs -> queued messages -> summaries ->
// checkpoints -> abstract terminals -> leases -> sessions -> thread row.
// Terminals and leases go before sessions because they are selected
// through the sessions table.
func (s *SQLiteStore) DeleteThreadCascade(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM run_events WHERE thread_id = ?`,
		`DELETE FROM runs WHERE thread_id = ?`,
		`DELETE FROM queued_messages WHERE thread_id = ?`,
		`DELETE FROM summaries WHERE thread_id = ?`,
		`DELETE FROM checkpoints WHERE thread_id = ?`,
		`DELETE FROM abstract_terminals WHERE session_id IN (SELECT id FROM sessions WHERE thread_id = ?)`,
		`DELETE FROM sandbox_leases WHERE session_id IN (SELECT id FROM sessions WHERE thread_id = ?)`,
		`DELETE FROM sessions WHERE thread_id = ?`,
		`DELETE FROM threads WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, threadID); err != nil {
			return fmt.Errorf("resolver: cascade delete: %w", err)
		}
	}
	return tx.Commit()
}
