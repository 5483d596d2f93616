package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skypro1111/micasr/internal/config"
	"github.com/skypro1111/micasr/internal/metrics"
)

// Registered once; promauto uses the process-global registry.
var testMetrics = metrics.NewMetrics()

func newTestServer() *HTTPServer {
	cfg := &config.Config{}
	status := func() Status {
		return Status{
			CaptureState: "recording",
			Utterances:   3,
			Failures:     1,
			LastText:     "hello",
		}
	}
	return NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0},
		slog.Default(), cfg, status, testMetrics)
}

func get(t *testing.T, h *HTTPServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer()

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestServer()

	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["capture_state"] != "recording" {
		t.Errorf("Expected capture_state recording, got %v", body["capture_state"])
	}
	if body["utterances"] != float64(3) {
		t.Errorf("Expected 3 utterances, got %v", body["utterances"])
	}
	if body["last_text"] != "hello" {
		t.Errorf("Expected last_text hello, got %v", body["last_text"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer()

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("Expected non-empty metrics exposition")
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	h := newTestServer()

	rec := get(t, h, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
