// Package capability defines the uniform contract workers use to invoke
// named external operations, and a registry of the built-in providers.
// Every invocation result, success or failure, becomes tool evidence.
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Args are the call arguments for one provider invocation.
type Args map[string]string

// String renders args deterministically for evidence records.
func (a Args) String() string {
	if len(a) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+a[k])
	}
	return strings.Join(parts, " ")
}

// Provider is one named external operation a worker can invoke.
type Provider interface {
	Invoke(ctx context.Context, args Args) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, args Args) (string, error)

// Invoke calls the function.
func (f ProviderFunc) Invoke(ctx context.Context, args Args) (string, error) {
	return f(ctx, args)
}

// Registry maps capability names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under a name. Registering the same name twice
// is a programming error.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return fmt.Errorf("invalid provider registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Invoke calls the named provider.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (string, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("capability %q not registered", name)
	}
	return p.Invoke(ctx, args)
}

// Has returns true if the capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
