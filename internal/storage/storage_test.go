package storage

import (
	"context"
	"database/sql"
	"testing"
)

// openTestDB opens an in-memory sqlite handle with the full schema applied,
// matching the real Open path but without touching the filesystem.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
