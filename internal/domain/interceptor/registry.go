package interceptor

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
)

// DefaultPageSize is the page size List uses when the caller does not
// override it.
const DefaultPageSize = 50

// ChangeListener is notified after every successful registration or
// unregistration. Listeners run synchronously under no lock; transports use
// this to emit list-changed notifications.
type ChangeListener func()

// Registry holds the live set of interceptor registrations. It is the only
// shared mutable state in the engine: writes take an exclusive lock just
// long enough to swap in a new snapshot, and every read operates on an
// immutable snapshot so chain executions never block on a concurrent
// registration.
type Registry struct {
	mu        sync.RWMutex
	snapshot  map[string]*Registration
	listeners []ChangeListener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		snapshot: make(map[string]*Registration),
	}
}

// OnChange registers a listener invoked after every registry mutation.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Register adds a registration. Fails with ErrDuplicateID if the ID is
// already taken and ErrNilHandler if the registration has no callable.
func (r *Registry) Register(reg *Registration) error {
	if reg.Handle == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, reg.Descriptor.ID)
	}
	if reg.Descriptor.ID == "" {
		return fmt.Errorf("registration has empty id")
	}
	if !reg.Descriptor.Kind.Valid() {
		return fmt.Errorf("registration %q has unknown kind %q", reg.Descriptor.ID, reg.Descriptor.Kind)
	}

	r.mu.Lock()
	if _, exists := r.snapshot[reg.Descriptor.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateID, reg.Descriptor.ID)
	}
	next := make(map[string]*Registration, len(r.snapshot)+1)
	for id, existing := range r.snapshot {
		next[id] = existing
	}
	stored := *reg
	stored.Descriptor = *reg.Descriptor.clone()
	next[stored.Descriptor.ID] = &stored
	r.snapshot = next
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Unregister removes a registration by ID. Fails with UnknownIDError if no
// such interceptor exists.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	if _, exists := r.snapshot[id]; !exists {
		r.mu.Unlock()
		return &UnknownIDError{ID: id}
	}
	next := make(map[string]*Registration, len(r.snapshot)-1)
	for existingID, existing := range r.snapshot {
		if existingID != id {
			next[existingID] = existing
		}
	}
	r.snapshot = next
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Resolve returns the registration for an ID, or UnknownIDError.
func (r *Registry) Resolve(id string) (*Registration, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	reg, ok := snap[id]
	if !ok {
		return nil, &UnknownIDError{ID: id}
	}
	return reg, nil
}

// Lookup returns descriptors applicable to the given event and phase, in
// (priority, id) order. Descriptors are copies; mutating them does not
// affect the registry.
func (r *Registry) Lookup(event string, phase Phase) []*Descriptor {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	var out []*Descriptor
	for _, reg := range snap {
		if reg.Descriptor.AppliesTo(event, phase) {
			out = append(out, reg.Descriptor.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Size returns the number of registered interceptors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshot)
}

// Page is one page of a stable descriptor listing.
type Page struct {
	// Descriptors are copies sorted by ID.
	Descriptors []*Descriptor
	// NextCursor is the opaque token for the next page, empty on the last
	// page.
	NextCursor string
}

// List returns a paginated snapshot of all descriptors, sorted by ID for a
// stable iteration order across pages. An empty pageToken starts from the
// beginning; pageSize <= 0 uses DefaultPageSize. An unparseable token is an
// error so clients notice a stale or corrupted cursor.
func (r *Registry) List(pageToken string, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if pageToken != "" {
		afterID, err := decodeCursor(pageToken)
		if err != nil {
			return nil, err
		}
		// Resume strictly after the cursor ID. Registrations added or
		// removed between pages shift the window but never repeat an
		// already-listed ID.
		start = sort.SearchStrings(ids, afterID)
		if start < len(ids) && ids[start] == afterID {
			start++
		}
	}

	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}

	page := &Page{Descriptors: make([]*Descriptor, 0, end-start)}
	for _, id := range ids[start:end] {
		page.Descriptors = append(page.Descriptors, snap[id].Descriptor.clone())
	}
	if end < len(ids) {
		page.NextCursor = encodeCursor(ids[end-1])
	}
	return page, nil
}

func encodeCursor(lastID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

func decodeCursor(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid page token: %w", err)
	}
	return string(raw), nil
}
