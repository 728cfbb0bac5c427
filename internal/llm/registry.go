package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type route struct {
	name     string
	supports func(model string) bool
	provider Provider
}

// Registry routes a request to the first registered provider that supports
// its model, falling back to a default provider.
type Registry struct {
	mu       sync.RWMutex
	routes   []route
	fallback Provider
}

// NewRegistry returns a registry that uses fallback for unmatched models.
// A nil fallback means unmatched models fail.
func NewRegistry(fallback Provider) *Registry {
	return &Registry{fallback: fallback}
}

// Register adds a provider for models accepted by supports.
func (r *Registry) Register(name string, supports func(model string) bool, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{name: name, supports: supports, provider: p})
}

// Names lists registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.name)
	}
	return out
}

// Generate dispatches req by model.
func (r *Registry) Generate(ctx context.Context, req Request) (string, error) {
	p, err := r.resolve(req.Model)
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, req)
}

func (r *Registry) resolve(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model = strings.TrimSpace(model)
	for _, rt := range r.routes {
		if rt.supports == nil || rt.supports(model) {
			return rt.provider, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no llm provider for model %q", model)
}

// HasPrefix returns a model matcher for case-insensitive name prefixes.
func HasPrefix(prefixes ...string) func(model string) bool {
	return func(model string) bool {
		m := strings.ToLower(strings.TrimSpace(model))
		for _, p := range prefixes {
			if strings.HasPrefix(m, strings.ToLower(p)) {
				return true
			}
		}
		return false
	}
}
