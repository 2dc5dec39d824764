// Package httpapi serves Leon's external HTTP surface: thread CRUD, runtime
// snapshots, run start/cancel, the SSE event stream, and queue-routed
// message posting (§6/§9). Grounded on internal/web/web.go's Config/Handler
// shape and manual-mux routing, narrowed from a dashboard UI to a JSON-only
// API -- no templates, no static assets, no htmx partials.
package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leon-agent/leon/internal/checkpoint"
	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/queuerouter"
	"github.com/leon-agent/leon/internal/resolver"
	"github.com/leon-agent/leon/internal/runsupervisor"
	"github.com/leon-agent/leon/internal/storage"
)

// Config wires the Server to the subsystems it fronts.
type Config struct {
	DB          *sql.DB
	Threads     *storage.ThreadStore
	Runs        *storage.RunStore
	Checkpoints checkpoint.Store
	Resolver    *resolver.Resolver
	Supervisor  *runsupervisor.Supervisor
	QueueStore  queuerouter.Store
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Server is Leon's HTTP API handler.
type Server struct {
	cfg Config
	mux *http.ServeMux

	mu      sync.Mutex
	queues  map[string]*queuerouter.ThreadQueue
	machine map[string]*queuerouter.StateMachine

	startedAt time.Time
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		queues:    make(map[string]*queuerouter.ThreadQueue),
		machine:   make(map[string]*queuerouter.StateMachine),
		startedAt: time.Now().UTC(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/threads", s.handleThreadsCollection)
	s.mux.HandleFunc("/threads/", s.handleThreadsItem)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Mount applies request logging/metrics and returns the final handler to
// install on an *http.Server (§1 AMBIENT STACK: structured request
// logging).
func (s *Server) Mount() http.Handler {
	return s.loggingMiddleware(s)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.cfg.Logger.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE responses stream through
// the logging middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, map[string]any{"ok": true, "uptime": time.Since(s.startedAt).String()})
}

// handleThreadsItem dispatches every /threads/{id}[/...] route by manually
// splitting the path, matching internal/web/api_sessions.go's apiSession
// routing idiom rather than a third-party router.
func (s *Server) handleThreadsItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/threads/")
	if path == "" {
		s.jsonError(w, "thread id required", http.StatusBadRequest)
		return
	}
	parts := strings.Split(path, "/")
	threadID := parts[0]
	if threadID == "" {
		s.jsonError(w, "thread id required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleThreadGet(w, r, threadID)
		case http.MethodDelete:
			s.handleThreadDelete(w, r, threadID)
		default:
			s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "runtime":
		s.handleThreadRuntime(w, r, threadID)
	case "runs":
		if len(parts) >= 3 {
			switch parts[2] {
			case "events":
				s.handleRunEvents(w, r, threadID)
			case "cancel":
				s.handleRunCancel(w, r, threadID)
			default:
				s.jsonError(w, "not found", http.StatusNotFound)
			}
			return
		}
		s.handleRunStart(w, r, threadID)
	case "messages":
		s.handleMessagePost(w, r, threadID)
	default:
		s.jsonError(w, "not found", http.StatusNotFound)
	}
}

// threadQueue returns (creating if needed) the in-process queue/state
// machine pair for a thread. Mirrors runsupervisor.Supervisor's byThread
// map idiom: one live object per thread, held for the server's lifetime.
func (s *Server) threadQueue(threadID string) *queuerouter.ThreadQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[threadID]; ok {
		return q
	}
	machine := queuerouter.NewStateMachine()
	q := queuerouter.NewThreadQueue(threadID, s.cfg.QueueStore, machine)
	s.queues[threadID] = q
	s.machine[threadID] = machine
	return q
}

func (s *Server) stateMachine(threadID string) *queuerouter.StateMachine {
	s.threadQueue(threadID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine[threadID]
}

// latestMessages loads the message history a new run should start from:
// the latest checkpoint's message list, or an empty slice for a fresh
// thread.
func (s *Server) latestMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	if s.cfg.Checkpoints == nil {
		return nil, nil
	}
	cp, err := s.cfg.Checkpoints.Get(ctx, models.CheckpointConfig{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	return cp.Messages, nil
}
