package resolver

import (
	"context"
	"database/sql"
	"testing"

	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/storage"
)

func openSQLiteTestStore(t *testing.T) (*sql.DB, *SQLiteStore) {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return db, store
}

func seedSQLiteThread(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	threads, err := storage.NewThreadStore(db)
	if err != nil {
		t.Fatalf("NewThreadStore: %v", err)
	}
	defer threads.Close()
	if err := threads.Create(context.Background(), &models.Thread{ID: id}); err != nil {
		t.Fatalf("seed thread: %v", err)
	}
}

func TestSQLiteStoreGetOrCreateSessionIsIdempotent(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	first, err := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	second, err := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	if err != nil {
		t.Fatalf("GetOrCreateSession (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ID = %q vs %q, want same session reused", first.ID, second.ID)
	}
	if second.Policy.MaxCostUSD != models.DefaultSessionPolicy().MaxCostUSD {
		t.Errorf("Policy not round-tripped correctly: %+v", second.Policy)
	}
}

func TestSQLiteStoreGetOrCreateTerminalIsIdempotent(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, err := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	first, err := store.GetOrCreateTerminal(ctx, sess.ID, "/work")
	if err != nil {
		t.Fatalf("GetOrCreateTerminal: %v", err)
	}
	second, err := store.GetOrCreateTerminal(ctx, sess.ID, "/work")
	if err != nil {
		t.Fatalf("GetOrCreateTerminal (second): %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected the same terminal to be reused")
	}
	if second.Cwd != "/work" {
		t.Errorf("Cwd = %q, want /work", second.Cwd)
	}
}

func TestSQLiteStoreUpdateTerminalBumpsVersion(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	term, err := store.GetOrCreateTerminal(ctx, sess.ID, "/work")
	if err != nil {
		t.Fatalf("GetOrCreateTerminal: %v", err)
	}
	term.Cwd = "/other"
	term.EnvDelta = map[string]string{"FOO": "bar"}
	if err := store.UpdateTerminal(ctx, term); err != nil {
		t.Fatalf("UpdateTerminal: %v", err)
	}
	if term.Version != 1 {
		t.Errorf("Version = %d, want 1 after one update", term.Version)
	}

	reloaded, err := store.GetOrCreateTerminal(ctx, sess.ID, "/work")
	if err != nil {
		t.Fatalf("reload terminal: %v", err)
	}
	if reloaded.Cwd != "/other" || reloaded.EnvDelta["FOO"] != "bar" {
		t.Errorf("reloaded terminal = %+v, want cwd=/other env FOO=bar", reloaded)
	}
}

func TestSQLiteStoreGetOrCreateLeaseIsIdempotent(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	first, err := store.GetOrCreateLease(ctx, sess.ID, "firecracker")
	if err != nil {
		t.Fatalf("GetOrCreateLease: %v", err)
	}
	if first.DesiredState != models.DesiredActive || first.ObservedState != models.ObservedUnknown {
		t.Errorf("new lease state = %q/%q, want active/unknown", first.DesiredState, first.ObservedState)
	}

	second, err := store.GetOrCreateLease(ctx, sess.ID, "firecracker")
	if err != nil {
		t.Fatalf("GetOrCreateLease (second): %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected the same lease to be reused for the session")
	}
}

func TestSQLiteStoreUpdateLeaseAndGetLease(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	lease, _ := store.GetOrCreateLease(ctx, sess.ID, "firecracker")

	lease.InstanceID = "inst-1"
	lease.ObservedState = models.ObservedActive
	lease.LastError = ""
	if err := store.UpdateLease(ctx, lease); err != nil {
		t.Fatalf("UpdateLease: %v", err)
	}

	got, err := store.GetLease(ctx, lease.ID)
	if err != nil {
		t.Fatalf("GetLease: %v", err)
	}
	if got.InstanceID != "inst-1" || got.ObservedState != models.ObservedActive {
		t.Errorf("got = %+v, want instance_id=inst-1 observed=active", got)
	}
}

func TestSQLiteStoreListNonConverged(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	lease, _ := store.GetOrCreateLease(ctx, sess.ID, "firecracker")

	list, err := store.ListNonConverged(ctx)
	if err != nil {
		t.Fatalf("ListNonConverged: %v", err)
	}
	if len(list) != 1 || list[0].ID != lease.ID {
		t.Errorf("ListNonConverged = %+v, want exactly the new unconverged lease", list)
	}

	lease.ObservedState = models.ObservedActive
	if err := store.UpdateLease(ctx, lease); err != nil {
		t.Fatalf("UpdateLease: %v", err)
	}
	list, err = store.ListNonConverged(ctx)
	if err != nil {
		t.Fatalf("ListNonConverged (after converge): %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListNonConverged = %+v, want none once converged", list)
	}
}

func TestSQLiteStoreListLeasesWithInstance(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	lease, _ := store.GetOrCreateLease(ctx, sess.ID, "firecracker")

	list, err := store.ListLeasesWithInstance(ctx)
	if err != nil {
		t.Fatalf("ListLeasesWithInstance: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no leases with instance id yet, got %+v", list)
	}

	lease.InstanceID = "inst-1"
	if err := store.UpdateLease(ctx, lease); err != nil {
		t.Fatalf("UpdateLease: %v", err)
	}
	list, err = store.ListLeasesWithInstance(ctx)
	if err != nil {
		t.Fatalf("ListLeasesWithInstance (after set): %v", err)
	}
	if len(list) != 1 || list[0].InstanceID != "inst-1" {
		t.Errorf("list = %+v, want exactly the instance-bearing lease", list)
	}
}

func TestSQLiteStoreRecordLeaseEvent(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	lease, _ := store.GetOrCreateLease(ctx, sess.ID, "firecracker")

	evt := &models.LeaseEvent{ID: "evt-1", LeaseID: lease.ID, Provider: "firecracker", Type: "create"}
	if err := store.RecordLeaseEvent(ctx, evt); err != nil {
		t.Fatalf("RecordLeaseEvent: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lease_events WHERE lease_id = ?`, lease.ID).Scan(&count); err != nil {
		t.Fatalf("query lease_events: %v", err)
	}
	if count != 1 {
		t.Errorf("lease_events count = %d, want 1", count)
	}
}

func TestSQLiteStoreSessionsForThreadAndLeaseBySession(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	lease, _ := store.GetOrCreateLease(ctx, sess.ID, "firecracker")

	sessions, err := store.SessionsForThread(ctx, "thread-1")
	if err != nil {
		t.Fatalf("SessionsForThread: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sess.ID {
		t.Errorf("SessionsForThread = %+v, want exactly the one session", sessions)
	}

	got, err := store.LeaseBySession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LeaseBySession: %v", err)
	}
	if got.ID != lease.ID {
		t.Errorf("LeaseBySession ID = %q, want %q", got.ID, lease.ID)
	}
}

func TestSQLiteStoreDeleteThreadCascadeRemovesSessionsAndLeases(t *testing.T) {
	db, store := openSQLiteTestStore(t)
	seedSQLiteThread(t, db, "thread-1")
	ctx := context.Background()

	sess, _ := store.GetOrCreateSession(ctx, "thread-1", models.DefaultSessionPolicy())
	store.GetOrCreateLease(ctx, sess.ID, "firecracker")
	store.GetOrCreateTerminal(ctx, sess.ID, "/work")

	if err := store.DeleteThreadCascade(ctx, "thread-1"); err != nil {
		t.Fatalf("DeleteThreadCascade: %v", err)
	}

	sessions, err := store.SessionsForThread(ctx, "thread-1")
	if err != nil {
		t.Fatalf("SessionsForThread: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions left after cascade delete, got %+v", sessions)
	}

	var threadCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE id = ?`, "thread-1").Scan(&threadCount); err != nil {
		t.Fatalf("query threads: %v", err)
	}
	if threadCount != 0 {
		t.Error("expected the thread row itself to be removed by the cascade")
	}
}
