// Package invoke executes exactly one interceptor: it binds arguments,
// manages the per-call target's lifecycle, runs the handler, and
// normalizes the returned result against the interceptor's declared kind.
package invoke

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// Engine invokes single interceptors.
type Engine struct {
	binder   *binding.Binder
	resolver interceptor.ServiceResolver
	session  *interceptor.SessionHandle
	logger   *slog.Logger
}

// NewEngine creates an invocation engine. The resolver and session may be
// nil when the host provides no services; binder must not be nil.
func NewEngine(binder *binding.Binder, resolver interceptor.ServiceResolver, session *interceptor.SessionHandle, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		binder:   binder,
		resolver: resolver,
		session:  session,
		logger:   logger,
	}
}

// Invoke runs one interceptor against the request payload. progress
// forwards the handler's progress reports; pass nil to drop them.
//
// Binding failures surface as *interceptor.BindingError, handler failures
// as *interceptor.HandlerError naming the interceptor. Neither is
// swallowed here; the chain executor decides how each group's failures
// propagate.
func (e *Engine) Invoke(ctx context.Context, reg *interceptor.Registration, event string, phase interceptor.Phase, payload map[string]any, progress interceptor.ProgressEmitter) (*interceptor.Result, error) {
	if progress == nil {
		progress = binding.NopProgress{}
	}

	args, err := e.binder.Bind(ctx, binding.Input{
		Params:   reg.Params,
		Payload:  payload,
		Resolver: e.resolver,
		Session:  e.session,
		Progress: progress,
	})
	if err != nil {
		return nil, err
	}

	call := &interceptor.Call{
		Event:    event,
		Phase:    phase,
		Args:     args,
		Payload:  payload,
		Progress: progress,
	}

	if reg.NewTarget != nil {
		target, err := reg.NewTarget(ctx, e.resolver)
		if err != nil {
			return nil, &interceptor.HandlerError{ID: reg.Descriptor.ID, Err: fmt.Errorf("target construction: %w", err)}
		}
		call.Target = target
		defer e.dispose(ctx, reg.Descriptor.ID, target)
	}

	result, err := reg.Handle(ctx, call)
	if err != nil {
		return nil, &interceptor.HandlerError{ID: reg.Descriptor.ID, Err: err}
	}

	return e.normalize(reg, result), nil
}

// normalize enforces the kind/result contract: a modified payload is
// honored only for mutation interceptors, findings only for validation
// interceptors. Metadata is kept for every kind. Anything else collapses
// to an empty result.
func (e *Engine) normalize(reg *interceptor.Registration, result *interceptor.Result) *interceptor.Result {
	if result == nil {
		return &interceptor.Result{}
	}

	out := &interceptor.Result{Metadata: result.Metadata}

	switch reg.Descriptor.Kind {
	case interceptor.KindMutation:
		out.Payload = result.Payload
	case interceptor.KindValidation:
		out.Findings = result.Findings
	}

	if result.Payload != nil && reg.Descriptor.Kind != interceptor.KindMutation {
		e.logger.Debug("discarding payload from non-mutation interceptor",
			"interceptor_id", reg.Descriptor.ID,
			"kind", reg.Descriptor.Kind)
	}
	if len(result.Findings) > 0 && reg.Descriptor.Kind != interceptor.KindValidation {
		e.logger.Debug("discarding findings from non-validation interceptor",
			"interceptor_id", reg.Descriptor.ID,
			"kind", reg.Descriptor.Kind)
	}

	return out
}

// dispose tears down a per-call target. Context-aware disposal is
// preferred; targets with only a synchronous Close are closed directly.
// Disposal runs even when the call's context is already cancelled, so it
// uses a non-cancellable derivative.
func (e *Engine) dispose(ctx context.Context, id string, target any) {
	ctx = context.WithoutCancel(ctx)
	switch closer := target.(type) {
	case interceptor.ContextCloser:
		if err := closer.CloseContext(ctx); err != nil {
			e.logger.Warn("target disposal failed", "interceptor_id", id, "error", err)
		}
	case io.Closer:
		if err := closer.Close(); err != nil {
			e.logger.Warn("target disposal failed", "interceptor_id", id, "error", err)
		}
	}
}
