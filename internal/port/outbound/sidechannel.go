// Package outbound defines the outbound port interfaces of the engine.
package outbound

import (
	"context"
	"time"
)

// MetadataEntry is one observability-group record: metadata an
// observability interceptor produced (or the failure it ended with),
// keyed by interceptor ID for later export.
type MetadataEntry struct {
	// InterceptorID names the interceptor that produced the entry.
	InterceptorID string `json:"interceptor_id"`
	// Event is the protocol operation the interceptor observed.
	Event string `json:"event"`
	// Phase is the protocol phase the interceptor observed.
	Phase string `json:"phase"`
	// Metadata is the interceptor's returned metadata, nil on failure.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Error carries the failure message when the interceptor failed.
	Error string `json:"error,omitempty"`
	// Timestamp records when the interceptor completed.
	Timestamp time.Time `json:"timestamp"`
}

// MetadataSink is the process-wide side channel observability results are
// merged into. Recording is best-effort: failures are logged by callers,
// never surfaced to the original caller of a chain.
type MetadataSink interface {
	// Record stores one completed observability result.
	Record(ctx context.Context, entry MetadataEntry) error
}
