// Package binding resolves interceptor call arguments from the three
// argument sources: well-known context values, the active service
// resolver, and the invocation payload.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// Well-known argument types the binder recognizes before consulting the
// service resolver or the payload.
var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	resolverType = reflect.TypeOf((*interceptor.ServiceResolver)(nil)).Elem()
	sessionType  = reflect.TypeOf((*interceptor.SessionHandle)(nil))
	progressType = reflect.TypeOf((*interceptor.ProgressEmitter)(nil)).Elem()
)

// Input carries everything one binding pass needs. The payload is read
// only; the binder never modifies it.
type Input struct {
	// Params are the target interceptor's declared arguments, in order.
	Params []interceptor.ParamSpec
	// Payload is the invocation payload. May be nil.
	Payload map[string]any
	// Resolver is the active service resolver. May be nil.
	Resolver interceptor.ServiceResolver
	// Session identifies the server/session for the invocation.
	Session *interceptor.SessionHandle
	// Progress is the emitter bound to the request's progress token.
	// Never nil; a no-op emitter stands in when no token was supplied.
	Progress interceptor.ProgressEmitter
}

// Binder produces bound argument sets for interceptor invocations.
type Binder struct {
	logger *slog.Logger
}

// NewBinder creates a binder.
func NewBinder(logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{logger: logger}
}

// Bind resolves every declared argument, first match wins:
//
//  1. Well-known context values, recognized by declared type: the
//     cancellation context, the service resolver, the session handle, and
//     the progress emitter.
//  2. Service-resolved arguments: explicitly marked (FromServices or
//     ServiceKey), or any argument whose type the resolver reports it can
//     satisfy. These never fall through to the payload.
//  3. Payload fields matched by declared name, converted to the declared
//     type. A required argument absent from the payload with no default
//     fails the binding.
//
// Returns the bound arguments positionally matching in.Params.
func (b *Binder) Bind(ctx context.Context, in Input) ([]any, error) {
	args := make([]any, len(in.Params))
	for i, spec := range in.Params {
		val, err := b.bindOne(ctx, &spec, &in)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

func (b *Binder) bindOne(ctx context.Context, spec *interceptor.ParamSpec, in *Input) (any, error) {
	// 1. Well-known context values.
	if spec.Type != nil {
		switch spec.Type {
		case contextType:
			return ctx, nil
		case resolverType:
			return in.Resolver, nil
		case sessionType:
			return in.Session, nil
		case progressType:
			return in.Progress, nil
		}
	}

	// 2. Service-resolved arguments. Marked arguments never fall through
	// to the payload, even when resolution fails.
	if spec.ServiceKey != "" {
		if in.Resolver == nil {
			return nil, &interceptor.BindingError{Param: spec.Name, Err: fmt.Errorf("no service resolver for keyed service %q", spec.ServiceKey)}
		}
		val, ok := in.Resolver.ResolveKeyed(spec.ServiceKey, spec.Type)
		if !ok {
			return nil, &interceptor.BindingError{Param: spec.Name, Err: fmt.Errorf("keyed service %q not resolvable", spec.ServiceKey)}
		}
		return val, nil
	}
	if spec.FromServices {
		if in.Resolver == nil {
			return nil, &interceptor.BindingError{Param: spec.Name, Err: fmt.Errorf("no service resolver available")}
		}
		val, ok := in.Resolver.Resolve(spec.Type)
		if !ok {
			return nil, &interceptor.BindingError{Param: spec.Name, Err: fmt.Errorf("service of type %v not resolvable", spec.Type)}
		}
		return val, nil
	}
	if spec.Type != nil && in.Resolver != nil && in.Resolver.CanResolve(spec.Type) {
		if val, ok := in.Resolver.Resolve(spec.Type); ok {
			return val, nil
		}
		return nil, &interceptor.BindingError{Param: spec.Name, Err: fmt.Errorf("resolver reported but failed to resolve type %v", spec.Type)}
	}

	// 3. Payload field by declared name.
	raw, present := in.Payload[spec.Name]
	if !present {
		if spec.Default != nil {
			return spec.Default, nil
		}
		if spec.Required {
			return nil, &interceptor.BindingError{Param: spec.Name, Missing: true}
		}
		return zeroValue(spec.Type), nil
	}

	val, err := convert(raw, spec.Type)
	if err != nil {
		return nil, &interceptor.BindingError{
			Param: spec.Name,
			Err:   &interceptor.SerializationError{Field: spec.Name, Err: err},
		}
	}
	return val, nil
}

// convert coerces a decoded payload value into the declared argument type.
// Assignable values pass through untouched; everything else round-trips
// through JSON, which handles the usual decode shapes (float64 numbers into
// integer arguments, maps into struct arguments).
func convert(raw any, t reflect.Type) (any, error) {
	if t == nil {
		return raw, nil
	}
	if raw == nil {
		return zeroValue(t), nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		return raw, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dst := reflect.New(t)
	if err := json.Unmarshal(data, dst.Interface()); err != nil {
		return nil, err
	}
	return dst.Elem().Interface(), nil
}

// zeroValue returns the zero value for a declared type, or nil when the
// argument is untyped.
func zeroValue(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}
