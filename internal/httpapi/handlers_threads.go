package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/leon-agent/leon/internal/models"
)

// threadCreateRequest is the body of POST /threads (§6).
type threadCreateRequest struct {
	Sandbox string `json:"sandbox"`
	Cwd     string `json:"cwd"`
	Agent   string `json:"agent"`
}

type threadResponse struct {
	ThreadID string `json:"thread_id"`
	Sandbox  string `json:"sandbox,omitempty"`
	Cwd      string `json:"cwd,omitempty"`
	Agent    string `json:"agent,omitempty"`
}

// threadDetailResponse is the body of GET /threads/{id} (§6: thread_id,
// messages, sandbox).
type threadDetailResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []models.Message `json:"messages"`
	Sandbox  string           `json:"sandbox,omitempty"`
}

func (s *Server) handleThreadsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req threadCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Sandbox == "" {
		s.jsonError(w, "sandbox is required", http.StatusBadRequest)
		return
	}

	t := &models.Thread{ID: uuid.NewString(), Sandbox: req.Sandbox, Cwd: req.Cwd, Agent: req.Agent}
	if err := s.cfg.Threads.Create(r.Context(), t); err != nil {
		s.writeErr(w, "httpapi.threadCreate", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.jsonResponse(w, threadResponse{ThreadID: t.ID, Sandbox: t.Sandbox, Cwd: t.Cwd, Agent: t.Agent})
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t, err := s.cfg.Threads.Get(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.threadGet", err)
		return
	}
	messages, err := s.latestMessages(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.threadGet", err)
		return
	}
	s.jsonResponse(w, threadDetailResponse{ThreadID: t.ID, Messages: messages, Sandbox: t.Sandbox})
}

// handleThreadDelete runs internal/resolver.Resolver.DeleteThread, which
// destroys the thread's leased instances and deletes every row the thread
// owns, the thread row included. ThreadStore.Delete then removes the row
// when no resolver is configured and finds nothing left to delete otherwise.
func (s *Server) handleThreadDelete(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodDelete {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Resolver != nil {
		if err := s.cfg.Resolver.DeleteThread(r.Context(), threadID); err != nil {
			s.writeErr(w, "httpapi.threadDelete", err)
			return
		}
	}
	if err := s.cfg.Threads.Delete(r.Context(), threadID); err != nil {
		s.writeErr(w, "httpapi.threadDelete", err)
		return
	}
	s.jsonResponse(w, map[string]bool{"ok": true})
}

// runtimeResponse is the body of GET /threads/{id}/runtime (§6 status
// snapshot).
type runtimeResponse struct {
	RunID    string `json:"run_id,omitempty"`
	Running  bool   `json:"running"`
	Status   string `json:"status,omitempty"`
	Dropped  uint64 `json:"dropped,omitempty"`
}

func (s *Server) handleThreadRuntime(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.cfg.Runs.ListByThread(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.threadRuntime", err)
		return
	}
	if len(runs) == 0 {
		s.jsonResponse(w, runtimeResponse{Running: false})
		return
	}
	latest := runs[0]
	resp := runtimeResponse{RunID: latest.RunID, Status: string(latest.Status)}
	if s.cfg.Supervisor != nil {
		if snap, err := s.cfg.Supervisor.RuntimeStatus(latest.RunID); err == nil {
			resp.Running = snap.Running
			resp.Dropped = snap.Dropped
		}
	}
	s.jsonResponse(w, resp)
}
