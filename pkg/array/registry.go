package array

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Target is one management endpoint together with the credentials to log in
type Target struct {
	Address  string
	Username string
	Password string
}

// Factory opens a new Mediator session against a single endpoint
type Factory func(ctx context.Context, target Target) (Mediator, error)

// Registry maps array type names, as they appear in volume ids, to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a family. Registering the same name twice is a programming error.
func (r *Registry) Register(arrayType string, factory Factory) error {
	if arrayType == "" {
		return fmt.Errorf("array type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for %s cannot be nil", arrayType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[arrayType]; exists {
		return fmt.Errorf("array type %s already registered", arrayType)
	}
	r.factories[arrayType] = factory
	return nil
}

// Lookup returns the factory for an array type
func (r *Registry) Lookup(arrayType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[arrayType]
	return f, ok
}

// Types returns the registered array types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
