package binding

import (
	"reflect"
	"sync"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// StaticResolver is a map-backed ServiceResolver. Services are provided at
// wiring time, either under their concrete type, under an explicit
// interface type, or under a string key for the keyed-service variant.
// Safe for concurrent use.
type StaticResolver struct {
	mu     sync.RWMutex
	byType map[reflect.Type]any
	byKey  map[string]any
}

// Compile-time check that StaticResolver implements ServiceResolver.
var _ interceptor.ServiceResolver = (*StaticResolver)(nil)

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		byType: make(map[reflect.Type]any),
		byKey:  make(map[string]any),
	}
}

// Provide registers a service under its concrete type.
func (r *StaticResolver) Provide(service any) {
	r.ProvideAs(reflect.TypeOf(service), service)
}

// ProvideAs registers a service under an explicit type, typically an
// interface type obtained via reflect.TypeOf((*Iface)(nil)).Elem().
func (r *StaticResolver) ProvideAs(t reflect.Type, service any) {
	r.mu.Lock()
	r.byType[t] = service
	r.mu.Unlock()
}

// ProvideKeyed registers a service under a string key.
func (r *StaticResolver) ProvideKeyed(key string, service any) {
	r.mu.Lock()
	r.byKey[key] = service
	r.mu.Unlock()
}

// CanResolve implements ServiceResolver.
func (r *StaticResolver) CanResolve(t reflect.Type) bool {
	_, ok := r.lookup(t)
	return ok
}

// Resolve implements ServiceResolver.
func (r *StaticResolver) Resolve(t reflect.Type) (any, bool) {
	return r.lookup(t)
}

// ResolveKeyed implements ServiceResolver. When t is non-nil the stored
// service must be assignable to it.
func (r *StaticResolver) ResolveKeyed(key string, t reflect.Type) (any, bool) {
	r.mu.RLock()
	service, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if t != nil && !reflect.TypeOf(service).AssignableTo(t) {
		return nil, false
	}
	return service, true
}

func (r *StaticResolver) lookup(t reflect.Type) (any, bool) {
	if t == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if service, ok := r.byType[t]; ok {
		return service, true
	}
	// An interface request is satisfied by any provided service
	// implementing it.
	if t.Kind() == reflect.Interface {
		for registered, service := range r.byType {
			if registered.Implements(t) {
				return service, true
			}
		}
	}
	return nil, false
}
