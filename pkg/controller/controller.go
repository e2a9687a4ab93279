// Package controller maps the controller identifiers declared by trees to
// the factories that build their instances.
//
// A controller instance is created each time its tree is opened and closed
// each time the tree executor is removed. Instances are plain Go values; the
// optional Creator and Closer interfaces expose lifecycle callbacks.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
)

// Factory builds a fresh controller instance.
type Factory func() any

// Creator is implemented by controllers that need to run code when their tree opens.
type Creator interface {
	OnCreate(ctx context.Context, env domain.Env) error
}

// Closer is implemented by controllers that need to run code when their tree
// executor is removed. OnClose is called on every removal path.
type Closer interface {
	OnClose(ctx context.Context, env domain.Env) error
}

// Registry manages the available controller factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry.
// If a factory with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New looks up a factory by name and builds an instance.
// Returns domain.ErrUnknownController if the name is not registered.
func (r *Registry) New(name string) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownController, name)
	}
	r.mu.RLock()
	fn, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownController, name)
	}

	return fn(), nil
}

// Names returns the registered identifiers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every controller declared under root is registered.
func (r *Registry) Validate(root *domain.Element) error {
	var walk func(e *domain.Element) error
	walk = func(e *domain.Element) error {
		if e.Controller != "" && !r.Has(e.Controller) {
			return &domain.ConfigError{Path: e.Path(), Reason: fmt.Sprintf("controller %q is not registered", e.Controller)}
		}
		for _, c := range e.Branches {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}
