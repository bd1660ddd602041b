package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderFactory builds a backend client for a model name.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry routes a (provider, model) pair to a client.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Memoize keeps one client per model. Failed builds are not cached.
func Memoize(f ProviderFactory) ProviderFactory {
	var mu sync.Mutex
	cache := map[string]Provider{}
	return func(ctx context.Context, model string) (Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[model]; ok {
			return p, nil
		}
		p, err := f(ctx, model)
		if err != nil {
			return nil, err
		}
		cache[model] = p
		return p, nil
	}
}
