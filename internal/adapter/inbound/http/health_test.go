package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chain-gate/chaingate/internal/adapter/outbound/sidechannel"
	"github.com/chain-gate/chaingate/internal/domain/chain"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/port/outbound"
)

// discardLogger returns a logger that discards all output (for tests)
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenSink is a sink whose health probe always fails.
type brokenSink struct{}

func (brokenSink) Record(context.Context, outbound.MetadataEntry) error {
	return errors.New("record failed")
}

func (brokenSink) Healthy() error {
	return errors.New("sink is closed")
}

var _ outbound.MetadataSink = brokenSink{}

func TestHealthChecker_Healthy(t *testing.T) {
	registry := interceptor.NewRegistry()
	tracker := chain.NewTracker(discardLogger())
	defer func() { _ = tracker.Drain(context.Background()) }()

	hc := NewHealthChecker(registry, tracker, sidechannel.NewMemorySink(0), "test-version")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["registry"] != "ok" {
		t.Errorf("registry check = %q, want ok", health.Checks["registry"])
	}
	if health.Checks["task_tracker"] != "ok" {
		t.Errorf("task_tracker check = %q, want ok", health.Checks["task_tracker"])
	}
	if health.Checks["side_channel"] != "ok" {
		t.Errorf("side_channel check = %q, want ok", health.Checks["side_channel"])
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil, "")
	health := hc.Check()

	// Still healthy with nil components
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["registry"] != "not configured" {
		t.Errorf("registry = %q, want 'not configured'", health.Checks["registry"])
	}
	if health.Checks["task_tracker"] != "not configured" {
		t.Errorf("task_tracker = %q, want 'not configured'", health.Checks["task_tracker"])
	}
	if health.Checks["side_channel"] != "not configured" {
		t.Errorf("side_channel = %q, want 'not configured'", health.Checks["side_channel"])
	}
}

func TestHealthChecker_DegradedSink(t *testing.T) {
	registry := interceptor.NewRegistry()
	hc := NewHealthChecker(registry, nil, brokenSink{}, "")
	health := hc.Check()

	if health.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", health.Status)
	}
	if !strings.HasPrefix(health.Checks["side_channel"], "degraded") {
		t.Errorf("side_channel = %q, want degraded", health.Checks["side_channel"])
	}

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	hc.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthChecker_ServeHTTP(t *testing.T) {
	registry := interceptor.NewRegistry()
	hc := NewHealthChecker(registry, nil, sidechannel.NewMemorySink(0), "1.0.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Response status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Response version = %q, want 1.0.0", resp.Version)
	}
}
