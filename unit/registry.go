package unit

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a unit from a configuration map.
type Factory[I, O any] func(cfg map[string]any) (Unit[I, O], error)

// Registry manages named unit factories and cached instances. It is
// safe for concurrent use.
type Registry[I, O any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[I, O]
	instances map[string]Unit[I, O]
}

// NewRegistry creates a new empty Registry.
func NewRegistry[I, O any]() *Registry[I, O] {
	return &Registry[I, O]{
		factories: make(map[string]Factory[I, O]),
		instances: make(map[string]Unit[I, O]),
	}
}

// RegisterFactory registers a named factory for creating units.
func (r *Registry[I, O]) RegisterFactory(name string, factory Factory[I, O]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a unit using the named factory and config.
func (r *Registry[I, O]) Create(name string, cfg map[string]any) (Unit[I, O], error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unit factory %q not registered", name)
	}
	return factory(cfg)
}

// Get returns a cached unit instance by name.
func (r *Registry[I, O]) Get(name string) (Unit[I, O], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	return inst, ok
}

// Set caches a unit instance by name.
func (r *Registry[I, O]) Set(name string, u Unit[I, O]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[name] = u
}

// List returns sorted names of all registered factories.
func (r *Registry[I, O]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
