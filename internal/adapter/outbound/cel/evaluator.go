// Package cel provides a CEL-based expression evaluator used to define
// interceptors declaratively: a validation expression yields findings, a
// mutation expression yields the replacement payload.
package cel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"
	"google.golang.org/protobuf/types/known/structpb"
)

// structValueType is the conversion target that turns any CEL result into
// a plain Go value (bool, string, float64, []any, map[string]any).
var structValueType = reflect.TypeOf(&structpb.Value{})

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions over invocation
// payloads. Compiled programs are cached by expression hash so repeated
// invocations of the same interceptor skip compilation.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[uint64]cel.Program
}

// NewPayloadEnvironment creates a CEL environment exposing the invocation
// to expressions: the payload map, the event name, and the phase.
func NewPayloadEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.StringType),
		cel.Variable("phase", cel.StringType),
	)
}

// NewEvaluator creates an evaluator with the payload environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewPayloadEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create payload environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		programs: make(map[uint64]cel.Program),
	}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled
// program. Programs are cached; the cache key is the xxhash of the
// expression text.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	key := xxhash.Sum64String(expression)

	e.mu.RLock()
	prg, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[key] = prg
	e.mu.Unlock()

	return prg, nil
}

// ValidateExpression checks that a CEL expression is syntactically valid
// and within the safety limits (length, nesting depth) before it is
// accepted as an interceptor definition.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Evaluate runs a compiled program against one invocation. The result is
// whatever native Go value the expression produces; callers interpret it
// per interceptor kind. Evaluation is bounded by both the caller's context
// and the evaluator's own timeout.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, payload map[string]any, event, phase string) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	activation := map[string]any{
		"payload": payload,
		"event":   event,
		"phase":   phase,
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	native, err := result.ConvertToNative(structValueType)
	if err != nil {
		return nil, fmt.Errorf("result conversion failed: %w", err)
	}
	return native.(*structpb.Value).AsInterface(), nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
