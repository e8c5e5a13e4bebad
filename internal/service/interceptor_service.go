// Package service contains the orchestration layer of the engine: request
// validation, tracing, and delegation to the chain executor and registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chain-gate/chaingate/internal/ctxkey"
	"github.com/chain-gate/chaingate/internal/domain/chain"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/port/inbound"
)

// ErrInvalidRequest marks a request the caller must fix: a missing event,
// an unknown phase, or an empty interceptor list.
var ErrInvalidRequest = errors.New("invalid request")

// loggerFromContext retrieves the enriched logger from context.
// Returns nil if no logger is in context, allowing caller to fall back.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// InterceptorService orchestrates single invocations, chain executions,
// and descriptor listing over the registry and executor.
type InterceptorService struct {
	registry *interceptor.Registry
	executor *chain.Executor
	pageSize int
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Compile-time check that InterceptorService implements the inbound port.
var _ inbound.InterceptorService = (*InterceptorService)(nil)

// NewInterceptorService creates the service. pageSize <= 0 uses the
// registry default.
func NewInterceptorService(registry *interceptor.Registry, executor *chain.Executor, pageSize int, logger *slog.Logger) *InterceptorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterceptorService{
		registry: registry,
		executor: executor,
		pageSize: pageSize,
		tracer:   otel.Tracer("chaingate/service"),
		logger:   logger,
	}
}

// Invoke runs a single interceptor. All failures (unknown id, binding,
// handler) propagate directly to the caller.
func (s *InterceptorService) Invoke(ctx context.Context, req *interceptor.Request, progress interceptor.ProgressEmitter) (*interceptor.Result, error) {
	if req.InterceptorID == "" {
		return nil, fmt.Errorf("%w: interceptorId is required", ErrInvalidRequest)
	}
	if err := validateEventPhase(req.Event, req.Phase); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "interceptors/invoke", trace.WithAttributes(
		attribute.String("interceptor.id", req.InterceptorID),
		attribute.String("interceptor.event", req.Event),
		attribute.String("interceptor.phase", req.Phase.String()),
	))
	defer span.End()

	result, err := s.executor.Invoke(ctx, req, progress)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.log(ctx).Warn("invocation failed", "interceptor_id", req.InterceptorID, "error", err)
		return nil, err
	}
	return result, nil
}

// ExecuteChain runs an interceptor chain. A mutation-group abort returns
// both the partial result and the chain-level error; the transport decides
// how to surface them.
func (s *InterceptorService) ExecuteChain(ctx context.Context, req *interceptor.ChainRequest, progress interceptor.ProgressEmitter) (*interceptor.ChainResult, error) {
	if len(req.InterceptorIDs) == 0 {
		return nil, fmt.Errorf("%w: interceptorIds is required", ErrInvalidRequest)
	}
	if err := validateEventPhase(req.Event, req.Phase); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "interceptors/chain", trace.WithAttributes(
		attribute.StringSlice("interceptor.ids", req.InterceptorIDs),
		attribute.String("interceptor.event", req.Event),
		attribute.String("interceptor.phase", req.Phase.String()),
	))
	defer span.End()

	result, err := s.executor.Execute(ctx, req, progress)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.log(ctx).Warn("chain execution failed", "event", req.Event, "error", err)
		return result, err
	}
	span.SetAttributes(attribute.Int("interceptor.findings", len(result.Findings)))
	return result, nil
}

// List returns one page of the registered descriptors.
func (s *InterceptorService) List(ctx context.Context, pageToken string) (*interceptor.Page, error) {
	page, err := s.registry.List(pageToken, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return page, nil
}

func (s *InterceptorService) log(ctx context.Context) *slog.Logger {
	if logger := loggerFromContext(ctx); logger != nil {
		return logger
	}
	return s.logger
}

func validateEventPhase(event string, phase interceptor.Phase) error {
	if event == "" {
		return fmt.Errorf("%w: event is required", ErrInvalidRequest)
	}
	if !phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidRequest, phase)
	}
	return nil
}
