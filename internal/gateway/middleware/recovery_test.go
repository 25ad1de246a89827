package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"chatrelay/internal/gateway/handlers"
	"chatrelay/pkg/logger"
)

// captureLog sends the global logger to a temp file for the test and
// returns a func reading back the JSON entries.
func captureLog(t *testing.T) func() []map[string]any {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.log")
	if err := logger.Init(logger.LogConfig{Level: "info", Format: "json", File: path}); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
		_ = logger.Init(logger.LogConfig{Level: "info", Format: "json"})
	})

	return func() []map[string]any {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		var entries []map[string]any
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			var e map[string]any
			if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
				entries = append(entries, e)
			}
		}
		return entries
	}
}

func findEntry(entries []map[string]any, msg string) map[string]any {
	for _, e := range entries {
		if e["message"] == msg {
			return e
		}
	}
	return nil
}

func panicking(w http.ResponseWriter, r *http.Request) {
	panic("webhook exploded")
}

func TestRecovery_PassesThrough(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestRecovery_FullChain(t *testing.T) {
	readLog := captureLog(t)

	handler := Recovery(Logging(RequestID(http.HandlerFunc(panicking))))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set(RequestIDHeader, "twilio-retry-7")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := w.Header().Get(RequestIDHeader); got != "twilio-retry-7" {
		t.Errorf("%s = %q, want %q", RequestIDHeader, got, "twilio-retry-7")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Error.Code != handlers.ErrCodeInternalError {
		t.Errorf("code = %s, want %s", resp.Error.Code, handlers.ErrCodeInternalError)
	}

	entry := findEntry(readLog(), "panic recovered")
	if entry == nil {
		t.Fatal("no panic log entry")
	}
	if entry["request_id"] != "twilio-retry-7" {
		t.Errorf("request_id = %v, want twilio-retry-7", entry["request_id"])
	}
	if entry["path"] != "/webhook" {
		t.Errorf("path = %v, want /webhook", entry["path"])
	}
}

func TestRecovery_GeneratedRequestIDLogged(t *testing.T) {
	readLog := captureLog(t)

	handler := Recovery(Logging(RequestID(http.HandlerFunc(panicking))))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	id := w.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatal("no request id on the 500 response")
	}

	entry := findEntry(readLog(), "panic recovered")
	if entry == nil {
		t.Fatal("no panic log entry")
	}
	if entry["request_id"] != id {
		t.Errorf("request_id = %v, want %s", entry["request_id"], id)
	}
}

func TestRecovery_RequestIDFromContext(t *testing.T) {
	readLog := captureLog(t)

	// inside RequestID the context already carries the id
	handler := RequestID(Recovery(http.HandlerFunc(panicking)))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "inner-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	entry := findEntry(readLog(), "panic recovered")
	if entry == nil {
		t.Fatal("no panic log entry")
	}
	if entry["request_id"] != "inner-1" {
		t.Errorf("request_id = %v, want inner-1", entry["request_id"])
	}
}
