// Package sidechannel provides the process-wide sinks observability-group
// metadata is merged into: an in-memory ring for development and tests,
// and a JSON Lines file sink with daily rotation and retention cleanup.
package sidechannel

import (
	"context"
	"sync"

	"github.com/chain-gate/chaingate/internal/port/outbound"
)

// defaultCapacity bounds the memory sink when the caller passes no cap.
const defaultCapacity = 1000

// MemorySink keeps the most recent metadata entries in a bounded ring.
// Thread-safe. For development and testing; production deployments use
// the file sink.
type MemorySink struct {
	mu       sync.RWMutex
	entries  []outbound.MetadataEntry
	capacity int
}

// Compile-time check that MemorySink implements MetadataSink.
var _ outbound.MetadataSink = (*MemorySink)(nil)

// NewMemorySink creates a memory sink holding at most capacity entries;
// capacity <= 0 uses the default.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemorySink{capacity: capacity}
}

// Record implements MetadataSink. The oldest entry is evicted when the
// ring is full.
func (s *MemorySink) Record(_ context.Context, entry outbound.MetadataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *MemorySink) Recent(n int) []outbound.MetadataEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]outbound.MetadataEntry, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Size returns the number of stored entries.
func (s *MemorySink) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Healthy reports whether the sink can accept records. The memory sink
// always can.
func (s *MemorySink) Healthy() error {
	return nil
}
