package invoke

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

func newTestEngine(resolver interceptor.ServiceResolver) *Engine {
	session := &interceptor.SessionHandle{ServerName: "gate"}
	return NewEngine(binding.NewBinder(nil), resolver, session, nil)
}

func registration(id string, kind interceptor.Kind, handle interceptor.HandlerFunc) *interceptor.Registration {
	return &interceptor.Registration{
		Descriptor: interceptor.Descriptor{ID: id, Kind: kind},
		Handle:     handle,
	}
}

func TestInvokePassesCallContext(t *testing.T) {
	e := newTestEngine(nil)

	var got *interceptor.Call
	reg := registration("obs", interceptor.KindObservability, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		got = call
		return &interceptor.Result{}, nil
	})
	reg.Params = []interceptor.ParamSpec{
		{Name: "url", Type: reflect.TypeOf("")},
	}

	payload := map[string]any{"url": "https://example.com"}
	_, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, payload, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if got.Event != "tools/call" || got.Phase != interceptor.PhaseRequest {
		t.Errorf("call event/phase = %q/%q", got.Event, got.Phase)
	}
	if len(got.Args) != 1 || got.Args[0] != "https://example.com" {
		t.Errorf("bound args = %v", got.Args)
	}
	if got.Payload["url"] != "https://example.com" {
		t.Errorf("call payload = %v", got.Payload)
	}
	if got.Progress == nil {
		t.Error("call progress must never be nil")
	}
}

func TestInvokeBindingFailure(t *testing.T) {
	e := newTestEngine(nil)

	reg := registration("val", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		t.Fatal("handler must not run on binding failure")
		return nil, nil
	})
	reg.Params = []interceptor.ParamSpec{
		{Name: "url", Type: reflect.TypeOf(""), Required: true},
	}

	_, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil)
	var bindErr *interceptor.BindingError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Invoke() error = %v, want *BindingError", err)
	}
}

func TestInvokeHandlerError(t *testing.T) {
	e := newTestEngine(nil)
	boom := errors.New("boom")

	reg := registration("val", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		return nil, boom
	})

	_, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil)
	var handlerErr *interceptor.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("Invoke() error = %v, want *HandlerError", err)
	}
	if handlerErr.ID != "val" {
		t.Errorf("HandlerError.ID = %q, want %q", handlerErr.ID, "val")
	}
	if !errors.Is(err, boom) {
		t.Error("HandlerError must wrap the handler's error")
	}
}

func TestInvokeNormalizesByKind(t *testing.T) {
	e := newTestEngine(nil)

	full := &interceptor.Result{
		Payload:  map[string]any{"mutated": true},
		Findings: []interceptor.Finding{{Severity: interceptor.SeverityError, Message: "bad"}},
		Metadata: map[string]any{"k": "v"},
	}

	tests := []struct {
		kind         interceptor.Kind
		wantPayload  bool
		wantFindings bool
	}{
		{interceptor.KindMutation, true, false},
		{interceptor.KindValidation, false, true},
		{interceptor.KindObservability, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			reg := registration("x", tt.kind, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
				return full, nil
			})
			res, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if (res.Payload != nil) != tt.wantPayload {
				t.Errorf("payload kept = %v, want %v", res.Payload != nil, tt.wantPayload)
			}
			if (len(res.Findings) > 0) != tt.wantFindings {
				t.Errorf("findings kept = %v, want %v", len(res.Findings) > 0, tt.wantFindings)
			}
			if res.Metadata["k"] != "v" {
				t.Error("metadata must be kept for every kind")
			}
		})
	}
}

func TestInvokeNilResult(t *testing.T) {
	e := newTestEngine(nil)
	reg := registration("x", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		return nil, nil
	})
	res, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res == nil {
		t.Fatal("Invoke() must never return a nil result without error")
	}
}

// closeRecorder records which disposal path ran.
type closeRecorder struct {
	closedContext bool
}

func (c *closeRecorder) CloseContext(ctx context.Context) error {
	c.closedContext = true
	return nil
}

type plainCloser struct {
	closed bool
}

func (c *plainCloser) Close() error {
	c.closed = true
	return nil
}

func TestInvokeTargetLifecycle(t *testing.T) {
	e := newTestEngine(nil)
	target := &closeRecorder{}

	var seen any
	reg := registration("x", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		seen = call.Target
		if target.closedContext {
			t.Error("target disposed before the handler ran")
		}
		return &interceptor.Result{}, nil
	})
	reg.NewTarget = func(ctx context.Context, resolver interceptor.ServiceResolver) (any, error) {
		return target, nil
	}

	if _, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if seen != target {
		t.Error("handler did not receive the per-call target")
	}
	if !target.closedContext {
		t.Error("context-aware disposal did not run")
	}
}

func TestInvokeTargetDisposedOnHandlerError(t *testing.T) {
	e := newTestEngine(nil)
	target := &plainCloser{}

	reg := registration("x", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		return nil, errors.New("boom")
	})
	reg.NewTarget = func(ctx context.Context, resolver interceptor.ServiceResolver) (any, error) {
		return target, nil
	}

	if _, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil); err == nil {
		t.Fatal("Invoke() expected handler error")
	}
	if !target.closed {
		t.Error("target must be disposed even when the handler fails")
	}
}

func TestInvokeTargetFactoryError(t *testing.T) {
	e := newTestEngine(nil)

	reg := registration("x", interceptor.KindValidation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		t.Fatal("handler must not run when target construction fails")
		return nil, nil
	})
	reg.NewTarget = func(ctx context.Context, resolver interceptor.ServiceResolver) (any, error) {
		return nil, errors.New("no target")
	}

	_, err := e.Invoke(context.Background(), reg, "tools/call", interceptor.PhaseRequest, nil, nil)
	var handlerErr *interceptor.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("Invoke() error = %v, want *HandlerError", err)
	}
}
