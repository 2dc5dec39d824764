package runsupervisor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leon-agent/leon/internal/models"
)

// ErrRunNotFound is returned by Observe/CancelRun/RuntimeStatus for an
// unknown run id.
var ErrRunNotFound = fmt.Errorf("runsupervisor: run not found")

// ErrThreadBusy is returned by StartRun when the thread already has a
// running run (§8 invariant: at most one active run per thread).
var ErrThreadBusy = fmt.Errorf("runsupervisor: thread already has a running run")

// activeRun tracks the live state of one in-flight run.
type activeRun struct {
	threadID string
	runID    string
	ring     *RunEventBuffer
	sink     *BackpressureSink
	emitter  *Emitter
	cancel   context.CancelFunc
	done     chan struct{}
}

// Config configures a Supervisor.
type Config struct {
	RingCapacity int
	Backpressure BackpressureConfig
	Producer     ProducerConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RingCapacity: DefaultRingCapacity,
		Backpressure: DefaultBackpressureConfig(),
		Producer:     DefaultProducerConfig(),
	}
}

// Supervisor is the entry point for §4.1: it starts runs, lets callers
// observe their event stream live with resume-cursor semantics, cancels
// in-flight runs, and reports runtime status. Grounded on
// internal/agent/loop.go's Run/RunWithBranch plus runtime.go's
// run/cancel/finally structure, adapted from an in-process channel model
// to a durable-log-backed one so Observe survives process restart.
type Supervisor struct {
	db     *sql.DB
	log    *EventLog
	model  ModelClient
	tools  ToolRunner
	cfg    Config

	mu          sync.Mutex
	byThread    map[string]*activeRun
	byRun       map[string]*activeRun
}

// NewSupervisor wires a Supervisor to its database handle (for the runs
// table) and model/tool boundaries. tools may be nil.
func NewSupervisor(db *sql.DB, model ModelClient, tools ToolRunner, cfg Config) *Supervisor {
	if cfg.RingCapacity <= 0 {
		cfg = DefaultConfig()
	}
	return &Supervisor{
		db:       db,
		log:      NewEventLog(db),
		model:    model,
		tools:    tools,
		cfg:      cfg,
		byThread: make(map[string]*activeRun),
		byRun:    make(map[string]*activeRun),
	}
}

// StartRun records a new run, starts its producer loop in the background,
// and returns its run id immediately. The loop continues after StartRun
// returns; observers attach via Observe.
func (s *Supervisor) StartRun(ctx context.Context, threadID string, history []models.Message, inputMessage string) (string, error) {
	s.mu.Lock()
	if _, busy := s.byThread[threadID]; busy {
		s.mu.Unlock()
		return "", ErrThreadBusy
	}
	s.mu.Unlock()

	runID := uuid.NewString()
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, thread_id, input_message, started_at, status)
VALUES (?, ?, ?, ?, ?)`, runID, threadID, inputMessage, now.Format(timeLayout), string(models.RunStatusRunning)); err != nil {
		return "", fmt.Errorf("runsupervisor: record run: %w", err)
	}

	ring := NewRunEventBuffer(s.cfg.RingCapacity)
	sink, _ := NewBackpressureSink(s.cfg.Backpressure)
	emitter := NewEmitter(threadID, runID, s.log, ring, sink)

	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		threadID: threadID,
		runID:    runID,
		ring:     ring,
		sink:     sink,
		emitter:  emitter,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.byThread[threadID] = ar
	s.byRun[runID] = ar
	s.mu.Unlock()

	producer := NewProducer(s.model, s.tools, s.cfg.Producer)
	go s.drive(runCtx, ar, producer, history)

	return runID, nil
}

// drive runs the producer to completion, emits the terminal event, writes
// the final run status, and unregisters the run (§4.1 step 7: "emit
// terminal event, cleanup in finally").
func (s *Supervisor) drive(ctx context.Context, ar *activeRun, producer *Producer, history []models.Message) {
	defer close(ar.done)
	defer ar.sink.Close()
	defer s.unregister(ar)

	err := producer.Produce(ctx, ar.threadID, history, ar.emitter)

	status := models.RunStatusDone
	errText := ""
	switch {
	case err != nil && ctx.Err() == context.Canceled:
		status = models.RunStatusCancelled
		_ = ar.emitter.Cancelled(context.Background())
	case err != nil:
		status = models.RunStatusError
		errText = err.Error()
		_ = ar.emitter.Error(context.Background(), err.Error(), "producer_error", true)
	default:
		_ = ar.emitter.Done(context.Background())
	}

	finished := time.Now().UTC()
	_, _ = s.db.ExecContext(context.Background(), `
UPDATE runs SET status = ?, finished_at = ?, error_text = ? WHERE run_id = ?`,
		string(status), finished.Format(timeLayout), errText, ar.runID)
}

func (s *Supervisor) unregister(ar *activeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byThread[ar.threadID]; ok && cur.runID == ar.runID {
		delete(s.byThread, ar.threadID)
	}
	delete(s.byRun, ar.runID)
}

// Observe streams events for a run starting after afterSeq. It first
// drains the live ring (falling back to the durable log if the ring has
// already evicted events the caller needs), then blocks for new events
// until the run reaches a terminal event or ctx is cancelled. Works for
// both in-flight and already-finished runs: a finished run's ring will
// report closed=true immediately and Observe exits after returning
// whatever the log holds.
func (s *Supervisor) Observe(ctx context.Context, runID string, afterSeq uint64, yield func(models.RunEvent) error) error {
	s.mu.Lock()
	ar, live := s.byRun[runID]
	s.mu.Unlock()

	if !live {
		return s.observeFinished(ctx, runID, afterSeq, yield)
	}

	for {
		events, gapped, closed := ar.ring.WaitNext(ctx, afterSeq)
		if gapped {
			var threadID string
			s.mu.Lock()
			threadID = ar.threadID
			s.mu.Unlock()
			logged, err := s.log.Since(ctx, threadID, runID, afterSeq)
			if err != nil {
				return err
			}
			events = logged
		}
		for _, e := range events {
			if err := yield(e); err != nil {
				return err
			}
			afterSeq = e.Seq
		}
		if closed {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) observeFinished(ctx context.Context, runID string, afterSeq uint64, yield func(models.RunEvent) error) error {
	var threadID string
	if err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM runs WHERE run_id = ?`, runID).Scan(&threadID); err != nil {
		if err == sql.ErrNoRows {
			return ErrRunNotFound
		}
		return err
	}
	events, err := s.log.Since(ctx, threadID, runID, afterSeq)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := yield(e); err != nil {
			return err
		}
	}
	return nil
}

// CancelRun requests cancellation of an in-flight run. It is a no-op
// (returning ErrRunNotFound) if the run is not currently active.
func (s *Supervisor) CancelRun(runID string) error {
	s.mu.Lock()
	ar, ok := s.byRun[runID]
	s.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	ar.cancel()
	return nil
}

// RuntimeStatusSnapshot is the point-in-time view returned by
// RuntimeStatus (§4.1, consumed by the HTTP status endpoint and `status`
// events).
type RuntimeStatusSnapshot struct {
	RunID     string
	ThreadID  string
	Running   bool
	Stats     RunStats
	Dropped   uint64
}

// RuntimeStatus reports the current state of an in-flight run. Stats are
// tracked in memory only while a run is live, so a finished or unknown run
// id returns ErrRunNotFound; the runs table and event log keep the history.
func (s *Supervisor) RuntimeStatus(runID string) (RuntimeStatusSnapshot, error) {
	s.mu.Lock()
	ar, ok := s.byRun[runID]
	s.mu.Unlock()
	if !ok {
		return RuntimeStatusSnapshot{}, ErrRunNotFound
	}
	return RuntimeStatusSnapshot{
		RunID:    ar.runID,
		ThreadID: ar.threadID,
		Running:  true,
		Stats:    ar.emitter.Stats(),
		Dropped:  ar.sink.DroppedCount(),
	}, nil
}
