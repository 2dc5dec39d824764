package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

func TestHandleRunEventsNoRuns(t *testing.T) {
	s := newFullServer(t, testServerOpts{withSuper: true})
	seedThread(t, s, "t-1")

	req := httptest.NewRequest(http.MethodGet, "/threads/t-1/runs/events", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRunEventsNoSupervisorConfigured(t *testing.T) {
	s := newFullServer(t, testServerOpts{})
	seedThread(t, s, "t-1")

	req := httptest.NewRequest(http.MethodGet, "/threads/t-1/runs/events", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleRunEventsStreamsUntilDone(t *testing.T) {
	s := newFullServer(t, testServerOpts{withSuper: true, model: &immediateModel{text: "hello"}})
	seedThread(t, s, "t-1")

	start := httptest.NewRequest(http.MethodPost, "/threads/t-1/runs", strings.NewReader(`{"message":"hi"}`))
	startRec := httptest.NewRecorder()
	s.ServeHTTP(startRec, start)
	if startRec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", startRec.Code, http.StatusAccepted)
	}

	req := httptest.NewRequest(http.MethodGet, "/threads/t-1/runs/events", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handleRunEvents did not return once the run reached its terminal event")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: text\n") {
		t.Errorf("body = %q, want a text event", body)
	}
	if !strings.Contains(body, "event: done\n") {
		t.Errorf("body = %q, want a terminal done event", body)
	}
}

func TestWriteSSEMergesDataFieldsAndSeq(t *testing.T) {
	rec := httptest.NewRecorder()
	ev := models.RunEvent{
		Seq:       7,
		Type:      models.RunEventText,
		MessageID: "m-1",
		Data:      json.RawMessage(`{"delta":"hi"}`),
	}
	if err := writeSSE(rec, rec, ev); err != nil {
		t.Fatalf("writeSSE: %v", err)
	}

	out := rec.Body.String()
	if !strings.HasPrefix(out, "event: text\ndata: ") {
		t.Fatalf("out = %q, want event: text framing", out)
	}
	dataLine := strings.TrimPrefix(strings.SplitN(out, "\n", 2)[1], "data: ")
	dataLine = strings.TrimSuffix(dataLine, "\n\n")

	var payload map[string]any
	if err := json.Unmarshal([]byte(dataLine), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["delta"] != "hi" {
		t.Errorf("payload[delta] = %v, want hi", payload["delta"])
	}
	if payload["message_id"] != "m-1" {
		t.Errorf("payload[message_id] = %v, want m-1", payload["message_id"])
	}
	if _, ok := payload["_seq"].(float64); !ok {
		t.Errorf("payload[_seq] = %v, want a numeric seq", payload["_seq"])
	}
}
