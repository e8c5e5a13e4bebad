package cel

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// Definition is one declaratively-defined interceptor: a descriptor plus
// the CEL expression implementing it. Definitions are loaded from the
// interceptor definitions YAML file at startup.
type Definition struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Kind        string   `yaml:"kind"`
	Priority    int      `yaml:"priority"`
	Events      []string `yaml:"events"`
	Phases      []string `yaml:"phases"`
	Expression  string   `yaml:"expression"`
}

// definitionsFile is the YAML document shape.
type definitionsFile struct {
	Interceptors []Definition `yaml:"interceptors"`
}

// LoadDefinitions reads interceptor definitions from a YAML file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions file: %w", err)
	}
	var doc definitionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse definitions file: %w", err)
	}
	return doc.Interceptors, nil
}

// Factory turns definitions into engine registrations.
type Factory struct {
	evaluator *Evaluator
}

// NewFactory creates a factory sharing one evaluator (and its program
// cache) across all definitions.
func NewFactory(evaluator *Evaluator) *Factory {
	return &Factory{evaluator: evaluator}
}

// Registration compiles a definition into a registry-ready registration.
// The expression is validated and compiled once, up front; the handler
// interprets the expression result per the declared kind:
//
//   - validation: false yields one error finding, true yields none, and a
//     list of {severity, message, path} maps yields those findings.
//   - mutation: the expression must yield a map, which becomes the
//     modified payload.
//   - observability: a map result becomes the metadata; any other result
//     is recorded under the "result" key.
func (f *Factory) Registration(def Definition) (*interceptor.Registration, error) {
	kind := interceptor.Kind(def.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("definition %q has unknown kind %q", def.ID, def.Kind)
	}
	phases := make([]interceptor.Phase, 0, len(def.Phases))
	for _, p := range def.Phases {
		phase := interceptor.Phase(p)
		if !phase.Valid() {
			return nil, fmt.Errorf("definition %q has unknown phase %q", def.ID, p)
		}
		phases = append(phases, phase)
	}

	if err := f.evaluator.ValidateExpression(def.Expression); err != nil {
		return nil, fmt.Errorf("definition %q: %w", def.ID, err)
	}
	prg, err := f.evaluator.Compile(def.Expression)
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", def.ID, err)
	}

	desc := interceptor.Descriptor{
		ID:               def.ID,
		Name:             def.Name,
		Description:      def.Description,
		Kind:             kind,
		Priority:         def.Priority,
		ApplicableEvents: def.Events,
		ApplicablePhases: phases,
	}
	handle := func(ctx context.Context, call *interceptor.Call) (*interceptor.Result, error) {
		value, err := f.evaluator.Evaluate(ctx, prg, call.Payload, call.Event, call.Phase.String())
		if err != nil {
			return nil, err
		}
		return interpret(kind, value)
	}

	return &interceptor.Registration{
		Descriptor: desc,
		Handle:     handle,
	}, nil
}

// interpret maps an expression result onto the tagged result variant for
// the definition's kind.
func interpret(kind interceptor.Kind, value any) (*interceptor.Result, error) {
	switch kind {
	case interceptor.KindValidation:
		return interpretValidation(value)
	case interceptor.KindMutation:
		payload, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mutation expression must yield a map, got %T", value)
		}
		return &interceptor.Result{Payload: payload}, nil
	case interceptor.KindObservability:
		if md, ok := value.(map[string]any); ok {
			return &interceptor.Result{Metadata: md}, nil
		}
		return &interceptor.Result{Metadata: map[string]any{"result": value}}, nil
	}
	return &interceptor.Result{}, nil
}

func interpretValidation(value any) (*interceptor.Result, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return &interceptor.Result{}, nil
		}
		return &interceptor.Result{Findings: []interceptor.Finding{{
			Severity: interceptor.SeverityError,
			Message:  "validation expression evaluated to false",
		}}}, nil
	case []any:
		findings := make([]interceptor.Finding, 0, len(v))
		for _, item := range v {
			finding, err := findingFromMap(item)
			if err != nil {
				return nil, err
			}
			findings = append(findings, finding)
		}
		return &interceptor.Result{Findings: findings}, nil
	default:
		return nil, fmt.Errorf("validation expression must yield a bool or a list of findings, got %T", value)
	}
}

func findingFromMap(item any) (interceptor.Finding, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return interceptor.Finding{}, fmt.Errorf("finding must be a map, got %T", item)
	}
	finding := interceptor.Finding{Severity: interceptor.SeverityError}
	if sev, ok := m["severity"].(string); ok {
		finding.Severity = interceptor.Severity(sev)
	}
	if msg, ok := m["message"].(string); ok {
		finding.Message = msg
	}
	if path, ok := m["path"].(string); ok {
		finding.Path = path
	}
	return finding, nil
}
