package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chain-gate/chaingate/internal/domain/chain"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/port/outbound"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// sinkHealth is the optional probe a metadata sink can expose.
type sinkHealth interface {
	Healthy() error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	registry *interceptor.Registry
	tracker  *chain.Tracker
	sink     outbound.MetadataSink
	version  string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(registry *interceptor.Registry, tracker *chain.Tracker, sink outbound.MetadataSink, version string) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		tracker:  tracker,
		sink:     sink,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Size() acquires the registry lock - if this hangs, we have a problem
	if h.registry != nil {
		_ = h.registry.Size()
		checks["registry"] = "ok"
	} else {
		checks["registry"] = "not configured"
	}

	if h.tracker != nil {
		_ = h.tracker.InFlight()
		checks["task_tracker"] = "ok"
	} else {
		checks["task_tracker"] = "not configured"
	}

	// A sink that cannot accept records means observability output is
	// being dropped, so the whole process reports unhealthy.
	switch sink := h.sink.(type) {
	case nil:
		checks["side_channel"] = "not configured"
	case sinkHealth:
		if err := sink.Healthy(); err != nil {
			checks["side_channel"] = fmt.Sprintf("degraded: %v", err)
			healthy = false
		} else {
			checks["side_channel"] = "ok"
		}
	default:
		checks["side_channel"] = "ok"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// ServeHTTP implements http.Handler for the /health endpoint.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Check()
	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
