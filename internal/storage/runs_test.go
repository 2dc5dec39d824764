package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

func TestRunStoreCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	threads, err := NewThreadStore(db)
	if err != nil {
		t.Fatalf("NewThreadStore: %v", err)
	}
	defer threads.Close()
	if err := threads.Create(context.Background(), &models.Thread{ID: "t-1", Sandbox: "python3.11"}); err != nil {
		t.Fatalf("seed thread: %v", err)
	}

	store, err := NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	run := &models.Run{RunID: "r-1", ThreadID: "t-1", InputMessage: "hello", Status: models.RunStatusRunning}
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.StartedAt.IsZero() {
		t.Error("Create should stamp StartedAt")
	}

	got, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ThreadID != "t-1" || got.InputMessage != "hello" || got.Status != models.RunStatusRunning {
		t.Errorf("Get returned %+v, want fields roundtripped", got)
	}
	if got.FinishedAt != nil {
		t.Error("FinishedAt should be nil for a running run")
	}
}

func TestRunStoreGetNotFound(t *testing.T) {
	db := openTestDB(t)
	store, err := NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	defer store.Close()

	_, err = store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRunStoreListByThread(t *testing.T) {
	db := openTestDB(t)
	threads, err := NewThreadStore(db)
	if err != nil {
		t.Fatalf("NewThreadStore: %v", err)
	}
	defer threads.Close()
	if err := threads.Create(context.Background(), &models.Thread{ID: "t-1", Sandbox: "python3.11"}); err != nil {
		t.Fatalf("seed thread: %v", err)
	}

	store, err := NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Create(ctx, &models.Run{RunID: "r-1", ThreadID: "t-1", InputMessage: "first", Status: models.RunStatusDone}); err != nil {
		t.Fatalf("Create r-1: %v", err)
	}
	if err := store.Create(ctx, &models.Run{RunID: "r-2", ThreadID: "t-1", InputMessage: "second", Status: models.RunStatusRunning}); err != nil {
		t.Fatalf("Create r-2: %v", err)
	}
	if err := store.Create(ctx, &models.Run{RunID: "r-other", ThreadID: "t-other", InputMessage: "other thread", Status: models.RunStatusDone}); err != nil {
		t.Fatalf("Create r-other: %v", err)
	}

	runs, err := store.ListByThread(ctx, "t-1")
	if err != nil {
		t.Fatalf("ListByThread: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListByThread returned %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.ThreadID != "t-1" {
			t.Errorf("ListByThread leaked run from thread %q", r.ThreadID)
		}
	}
}

func TestRunStoreUpdateStatus(t *testing.T) {
	db := openTestDB(t)
	threads, err := NewThreadStore(db)
	if err != nil {
		t.Fatalf("NewThreadStore: %v", err)
	}
	defer threads.Close()
	if err := threads.Create(context.Background(), &models.Thread{ID: "t-1", Sandbox: "python3.11"}); err != nil {
		t.Fatalf("seed thread: %v", err)
	}

	store, err := NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Create(ctx, &models.Run{RunID: "r-1", ThreadID: "t-1", InputMessage: "hello", Status: models.RunStatusRunning}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	finished := time.Now().UTC()
	if err := store.UpdateStatus(ctx, "r-1", models.RunStatusError, &finished, "boom"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.RunStatusError {
		t.Errorf("Status = %q, want %q", got.Status, models.RunStatusError)
	}
	if got.ErrorText != "boom" {
		t.Errorf("ErrorText = %q, want %q", got.ErrorText, "boom")
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt should be set after UpdateStatus")
	}
}

func TestRunStoreUpdateStatusNotFound(t *testing.T) {
	db := openTestDB(t)
	store, err := NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	defer store.Close()

	err = store.UpdateStatus(context.Background(), "missing", models.RunStatusDone, nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}
