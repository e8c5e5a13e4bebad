// Package chain implements the chain-execution engine: resolving requested
// interceptors, partitioning them by kind, and running each partition under
// its concurrency contract (mutations strictly ordered, validations in
// parallel, observability fire-and-forget) into one aggregated result.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/domain/invoke"
	"github.com/chain-gate/chaingate/internal/port/outbound"
)

// ExecutionError is the chain-level failure for an aborted mutation group.
// It always names the interceptor that failed.
type ExecutionError struct {
	// InterceptorID is the failing interceptor's id.
	InterceptorID string
	// Err is the original failure.
	Err error
}

// Error implements error.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("chain aborted at interceptor %q: %v", e.InterceptorID, e.Err)
}

// Unwrap returns the original failure.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Option configures an Executor.
type Option func(*Executor)

// WithValidationConcurrency caps how many validators run at once per
// chain. Zero or negative means unbounded.
func WithValidationConcurrency(n int) Option {
	return func(x *Executor) { x.validationConcurrency = n }
}

// WithDropHook installs a callback invoked whenever a completed
// observability result cannot be recorded to the side channel.
func WithDropHook(fn func()) Option {
	return func(x *Executor) { x.dropHook = fn }
}

// Executor runs interceptor chains against the registry.
type Executor struct {
	registry *interceptor.Registry
	engine   *invoke.Engine
	tracker  *Tracker
	sink     outbound.MetadataSink
	logger   *slog.Logger

	validationConcurrency int
	dropHook              func()
}

// NewExecutor creates a chain executor. The sink may be nil, in which case
// observability metadata is dropped after logging.
func NewExecutor(registry *interceptor.Registry, engine *invoke.Engine, tracker *Tracker, sink outbound.MetadataSink, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Executor{
		registry: registry,
		engine:   engine,
		tracker:  tracker,
		sink:     sink,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs a chain request to completion.
//
// Every requested id must resolve; an unknown id aborts the whole chain
// before any interceptor executes. Resolved interceptors whose phases
// exclude the requested phase are silently skipped. The remaining
// interceptors are partitioned by kind and each partition runs under its
// own contract:
//
//   - Mutations run strictly sequentially in (priority, id) order, each
//     step's output feeding the next step's input. A failing step aborts
//     the remaining mutations and surfaces as an *ExecutionError naming
//     the step; the other groups still run.
//   - Validations run concurrently, every validator observing the
//     original request payload. A failing validator degrades to one
//     synthesized error-severity finding and never stops its peers.
//     Findings are concatenated in (priority, id) order regardless of
//     completion order.
//   - Observability interceptors are launched through the task tracker
//     and never awaited; their metadata merges into the side channel on
//     completion and their failures are logged only.
//
// On a mutation abort the returned result is still populated (original
// payload, the validation findings, the metadata gathered so far)
// alongside the non-nil error.
func (x *Executor) Execute(ctx context.Context, req *interceptor.ChainRequest, progress interceptor.ProgressEmitter) (*interceptor.ChainResult, error) {
	if progress == nil {
		progress = binding.NopProgress{}
	}

	// Step 1: resolve everything up front. Unknown ids are caller-fixable
	// and abort before any execution.
	regs := make([]*interceptor.Registration, 0, len(req.InterceptorIDs))
	for _, id := range req.InterceptorIDs {
		reg, err := x.registry.Resolve(id)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	// Step 2: drop phase mismatches silently. Step 3: partition by kind.
	var mutations, validations, observers []*interceptor.Registration
	for _, reg := range regs {
		if !reg.Descriptor.AppliesToPhase(req.Phase) {
			x.logger.Debug("skipping interceptor for phase",
				"interceptor_id", reg.Descriptor.ID, "phase", req.Phase)
			continue
		}
		switch reg.Descriptor.Kind {
		case interceptor.KindMutation:
			mutations = append(mutations, reg)
		case interceptor.KindValidation:
			validations = append(validations, reg)
		case interceptor.KindObservability:
			observers = append(observers, reg)
		}
	}
	sortRegistrations(mutations)
	sortRegistrations(validations)
	sortRegistrations(observers)

	result := &interceptor.ChainResult{
		Payload:  req.Payload,
		Metadata: make(map[string]map[string]any),
	}

	// Observability launches first so a slow mutation group never delays
	// it; detachment makes the ordering invisible to the caller either way.
	x.launchObservers(observers, req)

	// Validators observe the original request payload, not intermediate
	// mutation state, so they run concurrently with the mutation group.
	findingsCh := x.startValidators(ctx, validations, req, progress)

	execErr := x.runMutations(ctx, mutations, req, progress, result)

	validated := <-findingsCh
	result.Findings = validated.findings
	for id, md := range validated.metadata {
		result.Metadata[id] = md
	}

	return result, execErr
}

// Invoke runs the degenerate single-interceptor case. Unlike chain
// execution, every failure (binding, handler, even a validator's)
// propagates directly to the caller.
func (x *Executor) Invoke(ctx context.Context, req *interceptor.Request, progress interceptor.ProgressEmitter) (*interceptor.Result, error) {
	reg, err := x.registry.Resolve(req.InterceptorID)
	if err != nil {
		return nil, err
	}
	if !reg.Descriptor.AppliesToPhase(req.Phase) {
		x.logger.Debug("interceptor skipped for phase",
			"interceptor_id", req.InterceptorID, "phase", req.Phase)
		return &interceptor.Result{}, nil
	}

	if reg.Descriptor.Kind == interceptor.KindObservability {
		x.launchObservers([]*interceptor.Registration{reg}, &interceptor.ChainRequest{
			Event:   req.Event,
			Phase:   req.Phase,
			Payload: req.Payload,
		})
		return &interceptor.Result{}, nil
	}

	return x.engine.Invoke(ctx, reg, req.Event, req.Phase, req.Payload, progress)
}

// runMutations executes the mutation group sequentially, threading the
// payload. The aggregated result keeps the last successful output even
// when a later step fails.
func (x *Executor) runMutations(ctx context.Context, mutations []*interceptor.Registration, req *interceptor.ChainRequest, progress interceptor.ProgressEmitter, result *interceptor.ChainResult) error {
	running := req.Payload
	for _, reg := range mutations {
		if err := ctx.Err(); err != nil {
			return &ExecutionError{InterceptorID: reg.Descriptor.ID, Err: err}
		}

		res, err := x.engine.Invoke(ctx, reg, req.Event, req.Phase, running, progress)
		if err != nil {
			x.logger.Warn("mutation step failed, aborting mutation group",
				"interceptor_id", reg.Descriptor.ID, "error", err)
			return &ExecutionError{InterceptorID: reg.Descriptor.ID, Err: err}
		}
		if res.Payload != nil {
			running = res.Payload
			result.Payload = running
		}
		if len(res.Metadata) > 0 {
			result.Metadata[reg.Descriptor.ID] = res.Metadata
		}
	}
	return nil
}

// validationOutcome carries the validation group's aggregated output.
type validationOutcome struct {
	findings []interceptor.Finding
	metadata map[string]map[string]any
}

// startValidators launches the validation group and returns a channel
// delivering the aggregated outcome. Results are collected into a slice
// indexed by the sorted interceptor order, so the concatenation is
// deterministic regardless of completion order.
func (x *Executor) startValidators(ctx context.Context, validations []*interceptor.Registration, req *interceptor.ChainRequest, progress interceptor.ProgressEmitter) <-chan validationOutcome {
	out := make(chan validationOutcome, 1)
	if len(validations) == 0 {
		out <- validationOutcome{}
		return out
	}

	var sem chan struct{}
	if x.validationConcurrency > 0 {
		sem = make(chan struct{}, x.validationConcurrency)
	}

	results := make([]*interceptor.Result, len(validations))
	failures := make([]error, len(validations))

	go func() {
		var wg sync.WaitGroup
		for i, reg := range validations {
			wg.Add(1)
			go func(i int, reg *interceptor.Registration) {
				defer wg.Done()
				if sem != nil {
					select {
					case sem <- struct{}{}:
						defer func() { <-sem }()
					case <-ctx.Done():
						failures[i] = ctx.Err()
						return
					}
				}
				res, err := x.engine.Invoke(ctx, reg, req.Event, req.Phase, req.Payload, progress)
				if err != nil {
					failures[i] = err
					return
				}
				results[i] = res
			}(i, reg)
		}
		wg.Wait()

		outcome := validationOutcome{metadata: make(map[string]map[string]any)}
		for i, reg := range validations {
			if err := failures[i]; err != nil {
				// A validator's failure never aborts the group; it
				// degrades to one synthesized finding attributed to the
				// validator.
				outcome.findings = append(outcome.findings, interceptor.Finding{
					Severity: interceptor.SeverityError,
					Message:  fmt.Sprintf("validator %q failed: %v", reg.Descriptor.ID, err),
				})
				continue
			}
			outcome.findings = append(outcome.findings, results[i].Findings...)
			if len(results[i].Metadata) > 0 {
				outcome.metadata[reg.Descriptor.ID] = results[i].Metadata
			}
		}
		out <- outcome
	}()
	return out
}

// launchObservers submits the observability group to the task tracker.
// Tasks run detached from the caller's cancellation scope; completions
// merge into the side channel and failures are logged, never surfaced.
func (x *Executor) launchObservers(observers []*interceptor.Registration, req *interceptor.ChainRequest) {
	for _, reg := range observers {
		reg := reg
		err := x.tracker.Go(reg.Descriptor.ID, func(ctx context.Context) {
			res, err := x.engine.Invoke(ctx, reg, req.Event, req.Phase, req.Payload, binding.NopProgress{})
			entry := outbound.MetadataEntry{
				InterceptorID: reg.Descriptor.ID,
				Event:         req.Event,
				Phase:         req.Phase.String(),
				Timestamp:     time.Now(),
			}
			if err != nil {
				x.logger.Warn("observability interceptor failed",
					"interceptor_id", reg.Descriptor.ID, "error", err)
				entry.Error = err.Error()
			} else {
				entry.Metadata = res.Metadata
			}
			x.record(ctx, entry)
		})
		if err != nil {
			x.logger.Warn("observability task rejected",
				"interceptor_id", reg.Descriptor.ID, "error", err)
		}
	}
}

func (x *Executor) record(ctx context.Context, entry outbound.MetadataEntry) {
	if x.sink == nil {
		return
	}
	if err := x.sink.Record(ctx, entry); err != nil {
		x.logger.Warn("side channel record failed",
			"interceptor_id", entry.InterceptorID, "error", err)
		if x.dropHook != nil {
			x.dropHook()
		}
	}
}

func sortRegistrations(regs []*interceptor.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		return interceptor.Less(&regs[i].Descriptor, &regs[j].Descriptor)
	})
}
