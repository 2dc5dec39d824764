package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leon-agent/leon/internal/errs"
	"github.com/leon-agent/leon/internal/storage"
)

// jsonResponse writes a 200 JSON response, grounded on
// internal/web/api.go's Handler.jsonResponse.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.cfg.Logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error body at the given status.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.cfg.Logger.Error("json encode error", "error", err)
	}
}

// decodeJSON decodes the request body, returning a 400 on malformed input.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeErr classifies err (an *errs.Error, a storage.ErrNotFound, or
// anything else) into an HTTP status, following §7's Kind taxonomy.
func (s *Server) writeErr(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindValidation:
			s.jsonError(w, e.Message, http.StatusBadRequest)
		case errs.KindNotFound:
			s.jsonError(w, e.Message, http.StatusNotFound)
		case errs.KindConflict:
			s.jsonError(w, e.Message, http.StatusConflict)
		case errs.KindTransientUpstream:
			s.jsonError(w, e.Message, http.StatusServiceUnavailable)
		default:
			s.cfg.Logger.Error(op, "error", err)
			s.jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	s.cfg.Logger.Error(op, "error", err)
	s.jsonError(w, "internal error", http.StatusInternalServerError)
}
