package httpapi

import (
	"net/http"

	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/runsupervisor"
)

// runStartRequest is the body of POST /threads/{id}/runs (§6).
type runStartRequest struct {
	Message          string `json:"message"`
	EnableTrajectory bool   `json:"enable_trajectory"`
}

type runStartResponse struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
}

// handleRunStart fires a run without streaming; callers attach to
// /threads/{id}/runs/events for output (§6: "fires the run, does not
// stream").
func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req runStartRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.jsonError(w, "message is required", http.StatusBadRequest)
		return
	}
	if s.cfg.Supervisor == nil {
		s.jsonError(w, "run supervisor not configured", http.StatusInternalServerError)
		return
	}

	history, err := s.latestMessages(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.runStart", err)
		return
	}
	history = append(history, models.Message{
		ThreadID: threadID,
		Role:     models.RoleUser,
		Content:  req.Message,
	})

	runID, err := s.cfg.Supervisor.StartRun(r.Context(), threadID, history, req.Message)
	if err != nil {
		if err == runsupervisor.ErrThreadBusy {
			s.jsonError(w, "thread already has a running run", http.StatusConflict)
			return
		}
		s.writeErr(w, "httpapi.runStart", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	s.jsonResponse(w, runStartResponse{RunID: runID, ThreadID: threadID})
}

// handleRunCancel implements POST /threads/{id}/runs/cancel.
func (s *Server) handleRunCancel(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Supervisor == nil {
		s.jsonError(w, "run supervisor not configured", http.StatusInternalServerError)
		return
	}
	runs, err := s.cfg.Runs.ListByThread(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.runCancel", err)
		return
	}
	if len(runs) == 0 {
		s.jsonError(w, "no runs for thread", http.StatusNotFound)
		return
	}
	if err := s.cfg.Supervisor.CancelRun(runs[0].RunID); err != nil {
		if err == runsupervisor.ErrRunNotFound {
			s.jsonError(w, "run is not active", http.StatusConflict)
			return
		}
		s.writeErr(w, "httpapi.runCancel", err)
		return
	}
	s.jsonResponse(w, map[string]bool{"ok": true})
}

// messagePostRequest is the body of POST /threads/{id}/messages (§6).
type messagePostRequest struct {
	Message string `json:"message"`
}

type messagePostResponse struct {
	Status  string `json:"status"`
	Routing string `json:"routing"`
}

// handleMessagePost routes an inbound message through the thread's queue
// (§4.4) rather than starting a run directly -- the state machine decides
// whether it runs immediately, queues, steers, or interrupts.
func (s *Server) handleMessagePost(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req messagePostRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	queue := s.threadQueue(threadID)
	mode, err := queue.Route(r.Context(), req.Message, true, false)
	if err != nil {
		s.writeErr(w, "httpapi.messagePost", err)
		return
	}
	s.jsonResponse(w, messagePostResponse{Status: "accepted", Routing: string(mode)})
}
