package memorymgr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leon-agent/leon/internal/backoff"
	"github.com/leon-agent/leon/internal/models"
)

const summaryTimeLayout = "2006-01-02 15:04:05"

// MaxStoreAttempts bounds summary store retries (§4.3 "Restart semantics":
// "bounded retries <= 3 with jittered backoff").
const MaxStoreAttempts = 3

// SummaryStore persists Summary rows against the embedded sqlite database.
// Grounded on internal/sessions/cockroach.go's prepared-statement idiom,
// wrapped in bounded jittered retries via internal/backoff.RetryWithBackoff.
type SummaryStore struct {
	db     *sql.DB
	policy backoff.BackoffPolicy

	stmtInsert       *sql.Stmt
	stmtDeactivate   *sql.Stmt
	stmtLatestActive *sql.Stmt
}

// NewSummaryStore prepares statements against an already-migrated handle.
func NewSummaryStore(db *sql.DB) (*SummaryStore, error) {
	s := &SummaryStore{db: db, policy: backoff.DefaultPolicy()}
	stmts := []struct {
		dst  **sql.Stmt
		text string
	}{
		{&s.stmtInsert, `INSERT INTO summaries (summary_id, thread_id, summary_text, compact_up_to_index, compacted_at, is_split_turn, split_turn_prefix, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`},
		{&s.stmtDeactivate, `UPDATE summaries SET is_active = 0 WHERE thread_id = ? AND is_active = 1`},
		{&s.stmtLatestActive, `SELECT summary_id, thread_id, summary_text, compact_up_to_index, compacted_at, is_split_turn, split_turn_prefix, is_active, created_at FROM summaries WHERE thread_id = ? AND is_active = 1 ORDER BY created_at DESC LIMIT 1`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.text)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("memorymgr: prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases prepared statements.
func (s *SummaryStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtDeactivate, s.stmtLatestActive} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return nil
}

// Save marks any prior active summary for the thread inactive and inserts
// the new one as active, inside one transaction, retried up to
// MaxStoreAttempts times with jittered backoff on transient failure (§4.3
// "Read and write each use bounded retries").
func (s *SummaryStore) Save(ctx context.Context, threadID string, summary models.Summary) error {
	_, err := backoff.RetryWithBackoff(ctx, s.policy, MaxStoreAttempts, func(attempt int) (struct{}, error) {
		return struct{}{}, s.save(ctx, threadID, summary)
	})
	return err
}

func (s *SummaryStore) save(ctx context.Context, threadID string, summary models.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.stmtDeactivate).ExecContext(ctx, threadID); err != nil {
		return fmt.Errorf("memorymgr: deactivate prior summary: %w", err)
	}

	now := time.Now().UTC()
	id := summary.SummaryID
	if id == "" {
		id = uuid.NewString()
	}
	splitTurn := 0
	if summary.IsSplitTurn {
		splitTurn = 1
	}
	if _, err := tx.StmtContext(ctx, s.stmtInsert).ExecContext(ctx,
		id, threadID, summary.SummaryText, summary.CompactUpToIndex,
		now.Format(summaryTimeLayout), splitTurn, summary.SplitTurnPrefix,
		now.Format(summaryTimeLayout),
	); err != nil {
		return fmt.Errorf("memorymgr: insert summary: %w", err)
	}

	return tx.Commit()
}

// LatestActive loads the most recent is_active=true row for threadID,
// retried up to MaxStoreAttempts times (§4.3 "Restart semantics"). Returns
// (nil, nil) when there is no active summary.
func (s *SummaryStore) LatestActive(ctx context.Context, threadID string) (*models.Summary, error) {
	result, err := backoff.RetryWithBackoff(ctx, s.policy, MaxStoreAttempts, func(attempt int) (*models.Summary, error) {
		return s.latestActive(ctx, threadID)
	})
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (s *SummaryStore) latestActive(ctx context.Context, threadID string) (*models.Summary, error) {
	row := s.stmtLatestActive.QueryRowContext(ctx, threadID)
	var sum models.Summary
	var compactedAt, createdAt string
	var isSplitTurn, isActive int
	if err := row.Scan(&sum.SummaryID, &sum.ThreadID, &sum.SummaryText, &sum.CompactUpToIndex,
		&compactedAt, &isSplitTurn, &sum.SplitTurnPrefix, &isActive, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	sum.IsSplitTurn = isSplitTurn != 0
	sum.IsActive = isActive != 0
	if t, err := time.Parse(summaryTimeLayout, compactedAt); err == nil {
		sum.CompactedAt = t
	}
	if t, err := time.Parse(summaryTimeLayout, createdAt); err == nil {
		sum.CreatedAt = t
	}
	return &sum, nil
}

// Validate checks an active summary row is usable: non-empty text and a
// sane compact_up_to_index against the current history length (§4.3
// "validate it: parseable, non-empty, consistent compact_up_to_index").
func Validate(summary *models.Summary, historyLen int) error {
	if summary == nil {
		return fmt.Errorf("memorymgr: nil summary")
	}
	if summary.SummaryText == "" {
		return fmt.Errorf("memorymgr: empty summary text")
	}
	if summary.CompactUpToIndex < 0 || summary.CompactUpToIndex > historyLen {
		return fmt.Errorf("memorymgr: compact_up_to_index %d inconsistent with history length %d", summary.CompactUpToIndex, historyLen)
	}
	return nil
}
