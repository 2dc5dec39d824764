package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/leon-agent/leon/internal/checkpoint"
	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
	"github.com/leon-agent/leon/internal/queuerouter"
	"github.com/leon-agent/leon/internal/resolver"
	"github.com/leon-agent/leon/internal/runsupervisor"
	"github.com/leon-agent/leon/internal/storage"
)

// immediateModel answers one text chunk and no tool calls, so a started
// run reaches its terminal "done" event almost immediately.
type immediateModel struct{ text string }

func (m *immediateModel) Stream(ctx context.Context, threadID string, history []models.Message) (runsupervisor.ModelStream, error) {
	return &immediateStream{text: m.text}, nil
}

type immediateStream struct {
	text string
	sent bool
}

func (s *immediateStream) Next(ctx context.Context) (runsupervisor.ModelChunk, bool, error) {
	if s.sent {
		return runsupervisor.ModelChunk{}, false, nil
	}
	s.sent = true
	return runsupervisor.ModelChunk{TextDelta: s.text}, true, nil
}

func (s *immediateStream) Close() error { return nil }

// gatedModel never completes until gate closes, letting tests exercise a
// thread that is busy with an in-flight run.
type gatedModel struct{ gate chan struct{} }

func (m *gatedModel) Stream(ctx context.Context, threadID string, history []models.Message) (runsupervisor.ModelStream, error) {
	return &gatedStream{gate: m.gate}, nil
}

type gatedStream struct{ gate chan struct{} }

func (s *gatedStream) Next(ctx context.Context) (runsupervisor.ModelChunk, bool, error) {
	select {
	case <-s.gate:
		return runsupervisor.ModelChunk{}, false, nil
	case <-ctx.Done():
		return runsupervisor.ModelChunk{}, false, ctx.Err()
	}
}

func (s *gatedStream) Close() error { return nil }

// fakeProvider is a minimal SandboxProvider whose instances converge to
// active on the first reconciler tick, mirroring internal/toolexec's test
// double.
type fakeProvider struct{ name string }

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Create(ctx context.Context, spec provider.CreateSpec) (string, error) {
	return "inst-1", nil
}

func (p *fakeProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	return models.ObservedActive, nil
}

func (p *fakeProvider) Pause(ctx context.Context, instanceID string) error   { return nil }
func (p *fakeProvider) Resume(ctx context.Context, instanceID string) error  { return nil }
func (p *fakeProvider) Destroy(ctx context.Context, instanceID string) error { return nil }

var _ provider.SandboxProvider = (*fakeProvider)(nil)

// testServerOpts tweaks what newFullServer wires up, since most tests
// only need a subset of the Config surface.
type testServerOpts struct {
	model       runsupervisor.ModelClient
	withSuper   bool
	withResolver bool
}

func newFullServer(t *testing.T, opts testServerOpts) *Server {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	threads, err := storage.NewThreadStore(db)
	if err != nil {
		t.Fatalf("NewThreadStore: %v", err)
	}
	t.Cleanup(func() { threads.Close() })

	runs, err := storage.NewRunStore(db)
	if err != nil {
		t.Fatalf("NewRunStore: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	checkpoints, err := checkpoint.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("checkpoint.NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { checkpoints.Close() })

	queue, err := queuerouter.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("queuerouter.NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	cfg := Config{
		DB:          db,
		Threads:     threads,
		Runs:        runs,
		Checkpoints: checkpoints,
		QueueStore:  queue,
	}

	if opts.withSuper {
		if opts.model == nil {
			opts.model = &immediateModel{text: "hi"}
		}
		supCfg := runsupervisor.DefaultConfig()
		supCfg.Producer.MaxWallTime = 5 * time.Second
		cfg.Supervisor = runsupervisor.NewSupervisor(db, opts.model, nil, supCfg)
	}

	if opts.withResolver {
		store, err := resolver.NewSQLiteStore(db)
		if err != nil {
			t.Fatalf("resolver.NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		reg := provider.NewRegistry(&fakeProvider{name: "fake"})
		rec := resolver.NewReconciler(store, reg, resolver.ReconcilerConfig{TickInterval: 5 * time.Millisecond}, nil)
		rcfg := resolver.Config{ConvergeTimeout: 2 * time.Second, ConvergePoll: 10 * time.Millisecond, DefaultProvider: "fake"}
		cfg.Resolver = resolver.New(store, rec, rcfg)
	}

	return NewServer(cfg)
}

func seedThread(t *testing.T, s *Server, id string) {
	t.Helper()
	if err := s.cfg.Threads.Create(context.Background(), &models.Thread{ID: id, Sandbox: "docker"}); err != nil {
		t.Fatalf("seed thread: %v", err)
	}
}
