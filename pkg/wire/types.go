// Package wire defines the JSON-RPC message shapes of the interceptor
// protocol and the codec utilities for the chain-gate transports.
package wire

import (
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// Protocol method names.
const (
	// MethodInitialize is the MCP-style handshake request.
	MethodInitialize = "initialize"
	// MethodPing is a liveness check.
	MethodPing = "ping"
	// MethodInvoke invokes a single interceptor.
	MethodInvoke = "interceptors/invoke"
	// MethodChain executes an interceptor chain.
	MethodChain = "interceptors/chain"
	// MethodList pages through the registered interceptor descriptors.
	MethodList = "interceptors/list"
	// NotificationListChanged signals that the interceptor set changed and
	// consumers should re-list.
	NotificationListChanged = "notifications/interceptors/list_changed"
	// NotificationProgress relays an interceptor's progress report to the
	// party that supplied a progress token.
	NotificationProgress = "notifications/progress"
)

// Meta is the request metadata envelope, following the MCP `_meta`
// convention.
type Meta struct {
	// ProgressToken, when present, asks the server to emit progress
	// notifications carrying this token. String or number.
	ProgressToken any `json:"progressToken,omitempty"`
}

// InvokeParams are the parameters of an interceptors/invoke request.
type InvokeParams struct {
	InterceptorID string         `json:"interceptorId"`
	Event         string         `json:"event"`
	Phase         string         `json:"phase"`
	Payload       map[string]any `json:"payload,omitempty"`
	Meta          *Meta          `json:"_meta,omitempty"`
}

// ChainParams are the parameters of an interceptors/chain request.
type ChainParams struct {
	InterceptorIDs []string       `json:"interceptorIds"`
	Event          string         `json:"event"`
	Phase          string         `json:"phase"`
	Payload        map[string]any `json:"payload,omitempty"`
	Meta           *Meta          `json:"_meta,omitempty"`
}

// ValidationResult is one finding on the wire.
type ValidationResult struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

// InvokeResult is the response of interceptors/invoke.
type InvokeResult struct {
	ModifiedPayload   map[string]any     `json:"modifiedPayload,omitempty"`
	ValidationResults []ValidationResult `json:"validationResults,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

// ChainResult is the response of interceptors/chain.
type ChainResult struct {
	ModifiedPayload      map[string]any            `json:"modifiedPayload,omitempty"`
	AllValidationResults []ValidationResult        `json:"allValidationResults,omitempty"`
	Metadata             map[string]map[string]any `json:"metadata,omitempty"`
}

// ListParams are the parameters of an interceptors/list request.
type ListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// InterceptorDescriptor is one descriptor on the wire. The kind is
// serialized under "type".
type InterceptorDescriptor struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Type             string   `json:"type"`
	Priority         int      `json:"priority"`
	ApplicableEvents []string `json:"applicableEvents,omitempty"`
	ApplicablePhases []string `json:"applicablePhases,omitempty"`
}

// ListResult is the response of interceptors/list.
type ListResult struct {
	Interceptors []InterceptorDescriptor `json:"interceptors"`
	NextCursor   string                  `json:"nextCursor,omitempty"`
}

// ProgressParams are the parameters of a notifications/progress
// notification.
type ProgressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// InitializeResult is the response of initialize.
type InitializeResult struct {
	ServerName    string `json:"serverName"`
	Version       string `json:"version"`
	ListChanged   bool   `json:"listChanged"`
	ProtocolHints any    `json:"protocolHints,omitempty"`
}

// FromFindings converts domain findings to wire validation results.
func FromFindings(findings []interceptor.Finding) []ValidationResult {
	if len(findings) == 0 {
		return nil
	}
	out := make([]ValidationResult, 0, len(findings))
	for _, f := range findings {
		out = append(out, ValidationResult{
			Severity: f.Severity.String(),
			Message:  f.Message,
			Path:     f.Path,
		})
	}
	return out
}

// FromDescriptor converts a domain descriptor to its wire form.
func FromDescriptor(d *interceptor.Descriptor) InterceptorDescriptor {
	var phases []string
	for _, p := range d.ApplicablePhases {
		phases = append(phases, p.String())
	}
	return InterceptorDescriptor{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Type:             d.Kind.String(),
		Priority:         d.Priority,
		ApplicableEvents: d.ApplicableEvents,
		ApplicablePhases: phases,
	}
}
