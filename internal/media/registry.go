package media

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an element for a spec whose factory it was registered
// under.
type Constructor func(spec ElementSpec) (Element, error)

type registration struct {
	kind Kind
	ctor Constructor
}

// Registry maps factory names to constructors. A factory that is not
// registered is reported as a missing capability.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]registration)}
}

// Register adds (or replaces) the constructor for factory.
func (r *Registry) Register(kind Kind, factory string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[factory] = registration{kind: kind, ctor: ctor}
}

// Unregister removes factory, making it a missing capability.
func (r *Registry) Unregister(factory string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ctors, factory)
}

// Has reports whether factory can be built.
func (r *Registry) Has(factory string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[factory]
	return ok
}

// Factories lists the registered factory names, sorted.
func (r *Registry) Factories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Make builds the element described by spec.
func (r *Registry) Make(spec ElementSpec) (Element, error) {
	r.mu.RLock()
	reg, ok := r.ctors[spec.Factory]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingElement, spec.Factory)
	}
	if reg.kind != spec.Kind {
		return nil, fmt.Errorf("media: factory %s builds a %s, not a %s", spec.Factory, reg.kind, spec.Kind)
	}
	el, err := reg.ctor(spec)
	if err != nil {
		return nil, fmt.Errorf("media: create %s: %w", spec.Factory, err)
	}
	return el, nil
}
