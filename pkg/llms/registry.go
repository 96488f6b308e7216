package llms

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rocketdocs/rocketdocs/pkg/config"
)

// Registry routes model names to providers. Routing is by longest matching
// model-name prefix, so "mistralai/" and "gpt-" can coexist without the
// callers knowing which vendor serves what.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	routes    []route
}

type route struct {
	prefix   string
	provider string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// NewRegistryFromConfig builds providers for every configured entry.
func NewRegistryFromConfig(cfg *config.LLMConfig) (*Registry, error) {
	r := NewRegistry()
	for name, providerCfg := range cfg.Providers {
		providerCfg := providerCfg

		var provider Provider
		var err error
		switch providerCfg.Type {
		case config.LLMProviderOpenAI:
			provider, err = NewOpenAIProviderFromConfig(&providerCfg)
		case config.LLMProviderAnyscale:
			provider, err = NewAnyscaleProviderFromConfig(&providerCfg)
		default:
			return nil, fmt.Errorf("unsupported LLM type: %s (supported: openai, anyscale)", providerCfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM provider %q: %w", name, err)
		}

		if err := r.Register(name, providerCfg.ModelPrefixes, provider); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider under the given model-name prefixes.
func (r *Registry) Register(name string, prefixes []string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	if len(prefixes) == 0 {
		return fmt.Errorf("provider %q has no model prefixes", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	for _, prefix := range prefixes {
		r.routes = append(r.routes, route{prefix: prefix, provider: name})
	}
	// Longest prefix wins.
	sort.Slice(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})

	return nil
}

// ProviderFor returns the provider serving the given model name.
func (r *Registry) ProviderFor(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return r.providers[rt.provider], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoProvider, model)
}

// List returns the registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, provider := range r.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
