package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/chain"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/domain/invoke"
)

type serviceEnv struct {
	registry *interceptor.Registry
	tracker  *chain.Tracker
	svc      *InterceptorService
}

func newServiceEnv(t *testing.T, pageSize int) *serviceEnv {
	t.Helper()
	registry := interceptor.NewRegistry()
	engine := invoke.NewEngine(binding.NewBinder(nil), nil, nil, nil)
	tracker := chain.NewTracker(nil)
	executor := chain.NewExecutor(registry, engine, tracker, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tracker.Drain(ctx)
	})
	return &serviceEnv{
		registry: registry,
		tracker:  tracker,
		svc:      NewInterceptorService(registry, executor, pageSize, nil),
	}
}

func (e *serviceEnv) register(t *testing.T, id string, kind interceptor.Kind, handle interceptor.HandlerFunc) {
	t.Helper()
	err := e.registry.Register(&interceptor.Registration{
		Descriptor: interceptor.Descriptor{ID: id, Name: id, Kind: kind},
		Handle:     handle,
	})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", id, err)
	}
}

func passingValidator(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
	return &interceptor.Result{
		Findings: []interceptor.Finding{{Severity: interceptor.SeverityInfo, Message: "ok"}},
	}, nil
}

func TestInvokeValidatesRequest(t *testing.T) {
	env := newServiceEnv(t, 0)

	tests := []struct {
		name string
		req  *interceptor.Request
	}{
		{
			name: "missing interceptor id",
			req:  &interceptor.Request{Event: "tools/call", Phase: interceptor.PhaseRequest},
		},
		{
			name: "missing event",
			req:  &interceptor.Request{InterceptorID: "x", Phase: interceptor.PhaseRequest},
		},
		{
			name: "unknown phase",
			req:  &interceptor.Request{InterceptorID: "x", Event: "tools/call", Phase: "both"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Invoke(context.Background(), tt.req, nil)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Invoke() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestInvokeDelegates(t *testing.T) {
	env := newServiceEnv(t, 0)
	env.register(t, "validate", interceptor.KindValidation, passingValidator)

	res, err := env.svc.Invoke(context.Background(), &interceptor.Request{
		InterceptorID: "validate",
		Event:         "tools/call",
		Phase:         interceptor.PhaseRequest,
	}, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Message != "ok" {
		t.Errorf("result = %+v", res)
	}
}

func TestInvokeUnknownIDPropagates(t *testing.T) {
	env := newServiceEnv(t, 0)

	var unknownErr *interceptor.UnknownIDError
	_, err := env.svc.Invoke(context.Background(), &interceptor.Request{
		InterceptorID: "missing",
		Event:         "tools/call",
		Phase:         interceptor.PhaseRequest,
	}, nil)
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Invoke() error = %v, want *UnknownIDError", err)
	}
}

func TestExecuteChainValidatesRequest(t *testing.T) {
	env := newServiceEnv(t, 0)

	tests := []struct {
		name string
		req  *interceptor.ChainRequest
	}{
		{
			name: "empty interceptor ids",
			req:  &interceptor.ChainRequest{Event: "tools/call", Phase: interceptor.PhaseRequest},
		},
		{
			name: "missing event",
			req:  &interceptor.ChainRequest{InterceptorIDs: []string{"x"}, Phase: interceptor.PhaseRequest},
		},
		{
			name: "unknown phase",
			req:  &interceptor.ChainRequest{InterceptorIDs: []string{"x"}, Event: "tools/call", Phase: "neither"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ExecuteChain(context.Background(), tt.req, nil)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("ExecuteChain() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestExecuteChainDelegates(t *testing.T) {
	env := newServiceEnv(t, 0)
	env.register(t, "validate", interceptor.KindValidation, passingValidator)
	env.register(t, "mutate", interceptor.KindMutation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		return &interceptor.Result{Payload: map[string]any{"tagged": true}}, nil
	})

	res, err := env.svc.ExecuteChain(context.Background(), &interceptor.ChainRequest{
		InterceptorIDs: []string{"validate", "mutate"},
		Event:          "tools/call",
		Phase:          interceptor.PhaseRequest,
		Payload:        map[string]any{},
	}, nil)
	if err != nil {
		t.Fatalf("ExecuteChain() error = %v", err)
	}
	if res.Payload["tagged"] != true {
		t.Errorf("payload = %v", res.Payload)
	}
	if len(res.Findings) != 1 {
		t.Errorf("findings = %v", res.Findings)
	}
}

func TestExecuteChainReturnsPartialResultOnAbort(t *testing.T) {
	env := newServiceEnv(t, 0)
	env.register(t, "broken", interceptor.KindMutation, func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		return nil, errors.New("boom")
	})

	res, err := env.svc.ExecuteChain(context.Background(), &interceptor.ChainRequest{
		InterceptorIDs: []string{"broken"},
		Event:          "tools/call",
		Phase:          interceptor.PhaseRequest,
		Payload:        map[string]any{"text": "x"},
	}, nil)

	var execErr *chain.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("ExecuteChain() error = %v, want *ExecutionError", err)
	}
	if res == nil || res.Payload["text"] != "x" {
		t.Errorf("partial result = %+v", res)
	}
}

func TestListPagesThroughRegistry(t *testing.T) {
	env := newServiceEnv(t, 2)
	for i := 0; i < 3; i++ {
		env.register(t, fmt.Sprintf("int-%d", i), interceptor.KindValidation, passingValidator)
	}

	page, err := env.svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Descriptors) != 2 || page.NextCursor == "" {
		t.Fatalf("first page = %d descriptors, cursor %q", len(page.Descriptors), page.NextCursor)
	}

	page, err = env.svc.List(context.Background(), page.NextCursor)
	if err != nil {
		t.Fatalf("List(cursor) error = %v", err)
	}
	if len(page.Descriptors) != 1 || page.NextCursor != "" {
		t.Errorf("second page = %d descriptors, cursor %q", len(page.Descriptors), page.NextCursor)
	}
}

func TestListInvalidCursor(t *testing.T) {
	env := newServiceEnv(t, 0)
	_, err := env.svc.List(context.Background(), "!!bad!!")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("List(bad cursor) error = %v, want ErrInvalidRequest", err)
	}
}
