package internal

import (
	"fmt"
	"sync"
)

// ComponentFactory builds a component instance. Factories for scoped
// components run once per request during Rebuild.
type ComponentFactory func() (any, error)

// Registry holds the worker's components split into two pools:
// persistent singletons that live as long as the worker, and scoped
// components rebuilt from their factories before every request. A
// scoped ID promoted via Promote is instantiated once and moves to the
// persistent pool, exempting it from per-request recreation.
type Registry struct {
	mu         sync.RWMutex
	persistent map[string]any
	factories  map[string]ComponentFactory
	scoped     map[string]any
	promoted   map[string]bool
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		persistent: make(map[string]any),
		factories:  make(map[string]ComponentFactory),
		scoped:     make(map[string]any),
		promoted:   make(map[string]bool),
	}
}

// SetPersistent stores a singleton under the given ID. Persistent
// components survive Rebuild and Reset.
func (r *Registry) SetPersistent(id string, component any) {
	r.mu.Lock()
	r.persistent[id] = component
	r.mu.Unlock()
}

// SetScoped registers a factory for a request-scoped component. The
// factory runs during every Rebuild unless the ID has been promoted.
func (r *Registry) SetScoped(id string, factory ComponentFactory) {
	r.mu.Lock()
	r.factories[id] = factory
	r.mu.Unlock()
}

// Promote exempts the given scoped IDs from per-request recreation.
// The instance built by the next Rebuild is kept for the worker's
// lifetime. Unknown IDs are remembered and take effect if a factory is
// registered later.
func (r *Registry) Promote(ids ...string) {
	r.mu.Lock()
	for _, id := range ids {
		r.promoted[id] = true
	}
	r.mu.Unlock()
}

// Rebuild recreates every scoped component whose ID is not in the
// persistent pool. Promoted IDs are instantiated on the first Rebuild
// and moved to the persistent pool. A factory error aborts the rebuild.
func (r *Registry) Rebuild() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scoped = make(map[string]any)
	for id, factory := range r.factories {
		if _, ok := r.persistent[id]; ok {
			continue
		}
		component, err := factory()
		if err != nil {
			return fmt.Errorf("build component %q: %w", id, err)
		}
		if r.promoted[id] {
			r.persistent[id] = component
		} else {
			r.scoped[id] = component
		}
	}
	return nil
}

// Reset drops all scoped instances. Persistent components are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.scoped = make(map[string]any)
	r.mu.Unlock()
}

// Get returns the component registered under id, checking the
// persistent pool first.
func (r *Registry) Get(id string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if component, ok := r.persistent[id]; ok {
		return component, true
	}
	component, ok := r.scoped[id]
	return component, ok
}

// Has reports whether id resolves to a component in either pool.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// PersistentIDs returns the IDs currently in the persistent pool.
func (r *Registry) PersistentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.persistent))
	for id := range r.persistent {
		ids = append(ids, id)
	}
	return ids
}

// Component retrieves a registry component by ID with a typed result.
// It returns the zero value and false when the ID is missing or holds a
// different type.
func Component[T any](r *Registry, id string) (T, bool) {
	var zero T
	raw, ok := r.Get(id)
	if !ok {
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
