package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry builds providers by name and keeps one instance per
// (provider, upstream model) so HTTP clients are reused across turns.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	built     map[providerKey]Provider
}

type providerKey struct {
	name  string
	model string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[providerKey]Provider),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register installs f under name, dropping instances built by an earlier
// factory of the same name.
func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for k := range r.built {
		if k.name == name {
			delete(r.built, k)
		}
	}
}

// Get returns the provider for model. Factory errors are not cached.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	key := providerKey{name: normalizeName(name), model: strings.TrimSpace(model)}

	r.mu.RLock()
	p, ok := r.built[key]
	f, known := r.factories[key.name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !known {
		return nil, fmt.Errorf("unknown ai provider: %s", key.name)
	}

	p, err := f(ctx, key.model)
	if err != nil {
		return nil, fmt.Errorf("%s provider for %q: %w", key.name, key.model, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.built[key]; ok {
		return existing, nil
	}
	r.built[key] = p
	return p, nil
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Missing returns the names among wanted that have no factory, deduplicated
// and sorted.
func (r *Registry) Missing(wanted ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, w := range wanted {
		n := normalizeName(w)
		if _, ok := r.factories[n]; ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
