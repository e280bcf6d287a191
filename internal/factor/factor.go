// Package factor holds the scoring providers that turn environment, device
// and context bundles into attribute scores for one authentication factor.
package factor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Provider scores one factor. Implementations must be pure and must not
// mutate their inputs.
type Provider interface {
	Evaluate(env, device, ctx model.Bundle) (model.Scores, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(env, device, ctx model.Bundle) (model.Scores, error)

func (f ProviderFunc) Evaluate(env, device, ctx model.Bundle) (model.Scores, error) {
	return f(env, device, ctx)
}

// Static returns fixed scores regardless of input.
func Static(scores model.Scores) Provider {
	frozen := scores.Clone()
	return ProviderFunc(func(_, _, _ model.Bundle) (model.Scores, error) {
		return frozen.Clone(), nil
	})
}

// Registry maps factor names to providers. It is safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Empty names and duplicates are rejected.
func (r *Registry) Register(name string, p Provider) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("factor name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("factor %q: nil provider", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("factor %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(name string, p Provider) {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
}

// Lookup returns the provider for name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered factor names, sorted.
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

// Resolve maps names to providers. Every unknown name is listed in the
// returned error, which wraps model.ErrUnknownFactor.
func (r *Registry) Resolve(names []string) (map[string]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Provider, len(names))
	var missing []string
	for _, name := range names {
		p, ok := r.providers[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownFactor, strings.Join(missing, ", "))
	}
	return out, nil
}
