package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/leon-agent/leon/internal/models"
)

// handleRunEvents implements GET /threads/{id}/runs/events?after=N: a
// long-lived text/event-stream of the thread's latest run, resumable via
// the after cursor (§6). SSE mechanics (flusher-per-event, event/data
// framing) follow the teacher's handlers_sessions.go streaming pattern;
// the resume-cursor semantics come from runsupervisor.Supervisor.Observe.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Supervisor == nil {
		s.jsonError(w, "run supervisor not configured", http.StatusInternalServerError)
		return
	}

	runs, err := s.cfg.Runs.ListByThread(r.Context(), threadID)
	if err != nil {
		s.writeErr(w, "httpapi.runEvents", err)
		return
	}
	if len(runs) == 0 {
		s.jsonError(w, "no runs for thread", http.StatusNotFound)
		return
	}
	runID := runs[0].RunID

	var afterSeq uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.jsonError(w, "after must be a non-negative integer", http.StatusBadRequest)
			return
		}
		afterSeq = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = s.cfg.Supervisor.Observe(r.Context(), runID, afterSeq, func(ev models.RunEvent) error {
		return writeSSE(w, flusher, ev)
	})
	if err != nil {
		s.cfg.Logger.Warn("httpapi.runEvents: stream ended", "run_id", runID, "error", err)
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev models.RunEvent) error {
	payload := map[string]any{"_seq": ev.Seq}
	if len(ev.Data) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(ev.Data, &decoded); err == nil {
			for k, v := range decoded {
				payload[k] = v
			}
		}
	}
	if ev.MessageID != "" {
		payload["message_id"] = ev.MessageID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
