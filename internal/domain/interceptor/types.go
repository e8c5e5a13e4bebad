// Package interceptor defines the core type system for the interceptor
// engine: descriptors identifying registered interceptors, the tagged
// result variant they produce, and the registration record binding a
// descriptor to its callable.
package interceptor

import (
	"context"
	"reflect"
	"slices"
)

// Kind categorizes an interceptor's execution semantics.
type Kind string

const (
	// KindValidation interceptors inspect the payload and report findings.
	// They run concurrently and never modify the payload.
	KindValidation Kind = "validation"
	// KindMutation interceptors transform the payload. They run strictly
	// sequentially in (priority, id) order.
	KindMutation Kind = "mutation"
	// KindObservability interceptors observe the payload without affecting
	// the call. They are launched fire-and-forget.
	KindObservability Kind = "observability"
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindValidation, KindMutation, KindObservability:
		return true
	}
	return false
}

// Phase indicates whether an interceptor applies to an incoming request
// or an outgoing response.
type Phase string

const (
	// PhaseRequest applies to incoming protocol requests.
	PhaseRequest Phase = "request"
	// PhaseResponse applies to outgoing protocol responses.
	PhaseResponse Phase = "response"
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseRequest || p == PhaseResponse
}

// Severity grades a validation finding.
type Severity string

const (
	// SeverityInfo is an informational finding.
	SeverityInfo Severity = "info"
	// SeverityWarning indicates a suspect but non-fatal condition.
	SeverityWarning Severity = "warning"
	// SeverityError indicates the payload failed validation.
	SeverityError Severity = "error"
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	return string(s)
}

// Finding is a single validation outcome.
type Finding struct {
	// Severity grades the finding.
	Severity Severity `json:"severity"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Path optionally points into the payload (e.g. "arguments.url").
	Path string `json:"path,omitempty"`
}

// Descriptor describes one registered interceptor's identity and execution
// metadata. Descriptors are immutable after registration; the registry hands
// out copies.
type Descriptor struct {
	// ID uniquely identifies the interceptor. It is the only key.
	ID string
	// Name is the display name.
	Name string
	// Description optionally explains what the interceptor does.
	Description string
	// Kind selects the execution semantics.
	Kind Kind
	// Priority orders execution within a kind; lower runs earlier.
	// Ties break by ID, ascending.
	Priority int
	// ApplicableEvents restricts the interceptor to the named protocol
	// events (e.g. "tools/call"). Empty means all events.
	ApplicableEvents []string
	// ApplicablePhases restricts the interceptor to request and/or
	// response phases. Empty means both.
	ApplicablePhases []Phase
}

// AppliesTo reports whether the descriptor matches the given event and phase.
func (d *Descriptor) AppliesTo(event string, phase Phase) bool {
	return d.AppliesToEvent(event) && d.AppliesToPhase(phase)
}

// AppliesToEvent reports whether the descriptor matches the event name.
func (d *Descriptor) AppliesToEvent(event string) bool {
	if len(d.ApplicableEvents) == 0 {
		return true
	}
	return slices.Contains(d.ApplicableEvents, event)
}

// AppliesToPhase reports whether the descriptor matches the phase.
func (d *Descriptor) AppliesToPhase(phase Phase) bool {
	if len(d.ApplicablePhases) == 0 {
		return true
	}
	return slices.Contains(d.ApplicablePhases, phase)
}

// clone returns a deep copy so callers can never mutate registry state.
func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.ApplicableEvents = slices.Clone(d.ApplicableEvents)
	c.ApplicablePhases = slices.Clone(d.ApplicablePhases)
	return &c
}

// Less orders descriptors by (priority ascending, id ascending). This is
// the canonical execution and result order within a kind.
func Less(a, b *Descriptor) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// Result is the tagged variant an interceptor returns. The invocation
// engine enforces that the populated field matches the declared kind:
// Payload is honored only for mutation interceptors, Findings only for
// validation interceptors. Metadata is honored for every kind.
type Result struct {
	// Payload is the modified payload (mutation interceptors only).
	Payload map[string]any
	// Findings are validation outcomes (validation interceptors only).
	Findings []Finding
	// Metadata is free-form key/value output, kept for every kind.
	Metadata map[string]any
}

// Request targets a single interceptor invocation.
type Request struct {
	// InterceptorID names the registered interceptor to invoke.
	InterceptorID string
	// Event is the protocol operation name (e.g. "tools/call").
	Event string
	// Phase is the protocol phase being intercepted.
	Phase Phase
	// Payload is the opaque structured message content. May be nil.
	Payload map[string]any
	// ProgressToken, when set, relays progress notifications back to the
	// invoking party. String or number per the MCP convention.
	ProgressToken any
}

// ChainRequest asks for an ordered set of interceptors to run together.
// The ID order is advisory only: execution order within each kind is
// recomputed as (priority, id).
type ChainRequest struct {
	// InterceptorIDs are the interceptors to run. Every ID must resolve.
	InterceptorIDs []string
	// Event is the protocol operation name.
	Event string
	// Phase is the protocol phase being intercepted.
	Phase Phase
	// Payload is the opaque structured message content. May be nil.
	Payload map[string]any
	// ProgressToken, when set, relays progress notifications back to the
	// invoking party.
	ProgressToken any
}

// ChainResult is the aggregated outcome of a chain execution.
type ChainResult struct {
	// Payload is the final payload after all mutation steps, or the
	// original payload if no mutation ran.
	Payload map[string]any
	// Findings concatenates every validator's findings in (priority, id)
	// interceptor order.
	Findings []Finding
	// Metadata merges each interceptor's metadata, keyed by interceptor
	// ID to avoid collisions.
	Metadata map[string]map[string]any
}

// ServiceResolver supplies service-resolved arguments to the parameter
// binder. Implementations report capability explicitly so the binder never
// guesses whether a type is container-provided or payload-provided.
type ServiceResolver interface {
	// CanResolve reports whether the resolver can satisfy the type.
	CanResolve(t reflect.Type) bool
	// Resolve returns the service instance for the type.
	Resolve(t reflect.Type) (any, bool)
	// ResolveKeyed returns the service instance registered under an
	// explicit key instead of the bare type.
	ResolveKeyed(key string, t reflect.Type) (any, bool)
}

// ProgressEmitter forwards progress reports from a running interceptor to
// the invoking party. Emitters bound to an absent progress token drop
// reports silently.
type ProgressEmitter interface {
	Emit(ctx context.Context, progress, total float64, message string)
}

// SessionHandle identifies the server/session an invocation belongs to.
// It is one of the well-known context values the binder can supply.
type SessionHandle struct {
	// ServerName is the name the engine's server advertises.
	ServerName string
	// SessionID identifies the client session, when the transport has one.
	SessionID string
}

// ParamSpec declares one expected argument of an interceptor callable.
// The binder resolves specs positionally: well-known context values first,
// then service-resolved arguments, then payload fields by name.
type ParamSpec struct {
	// Name matches a payload field for payload-sourced arguments.
	Name string
	// Type is the declared Go type of the argument. Well-known context
	// values (context.Context, ServiceResolver, *SessionHandle,
	// ProgressEmitter) are recognized by this type.
	Type reflect.Type
	// Required marks an argument whose absence (with no default) is a
	// binding failure.
	Required bool
	// Default is used when an optional payload argument is absent.
	Default any
	// FromServices marks the argument as service-resolved regardless of
	// what the resolver reports for its type.
	FromServices bool
	// ServiceKey selects the keyed-service variant of resolution.
	// Implies FromServices.
	ServiceKey string
}

// Call carries everything an interceptor handler receives beyond the
// context: the bound arguments, the per-call target (if the registration
// has a target factory), a read-only view of the payload, and the progress
// emitter for the invocation.
type Call struct {
	// Event is the protocol operation being intercepted.
	Event string
	// Phase is the protocol phase being intercepted.
	Phase Phase
	// Args are the bound arguments, positionally matching the
	// registration's ParamSpecs.
	Args []any
	// Target is the per-call target object, nil without a factory.
	Target any
	// Payload is the payload the interceptor was invoked with. Handlers
	// must not modify it; mutation handlers return a new payload.
	Payload map[string]any
	// Progress forwards progress reports to the invoking party.
	Progress ProgressEmitter
}

// HandlerFunc is the interceptor callable. Returning an error marks the
// invocation as failed; the chain executor decides how the failure
// propagates based on the interceptor's kind.
type HandlerFunc func(ctx context.Context, call *Call) (*Result, error)

// TargetFactory constructs a per-call target object. Targets implementing
// io.Closer or ContextCloser are disposed after the call completes.
type TargetFactory func(ctx context.Context, resolver ServiceResolver) (any, error)

// ContextCloser is the context-aware disposal contract for per-call
// targets whose teardown may block.
type ContextCloser interface {
	CloseContext(ctx context.Context) error
}

// Registration binds a descriptor to its callable and argument contract.
// Registrations are handed to the registry fully constructed; discovery or
// scanning of interceptor-bearing types is an external adapter's job.
type Registration struct {
	// Descriptor is the interceptor's identity and execution metadata.
	Descriptor Descriptor
	// Params declare the callable's expected arguments, in order.
	Params []ParamSpec
	// NewTarget optionally constructs a per-call target object.
	NewTarget TargetFactory
	// Handle is the interceptor logic. Required.
	Handle HandlerFunc
}
