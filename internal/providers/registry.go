package providers

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// RegistryConfig lists the providers to build, keyed by name.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig is one provider entry with its API key already resolved.
type LLMProviderConfig struct {
	Type      string // openrouter or openai
	Model     string
	APIKey    string
	BaseURL   string
	RateLimit int // requests per minute
	Enabled   bool
}

// usable reports whether the entry can be turned into a client.
func (c LLMProviderConfig) usable() bool {
	return c.Enabled && c.APIKey != ""
}

type registration struct {
	client  LLMClient
	limiter *RateLimiter
	// cfg is nil for clients registered by hand; Reload leaves those alone.
	cfg *LLMProviderConfig
}

// Registry maps provider names to clients. It is safe for concurrent use and
// can be rebuilt in place when configuration changes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	logger  *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
		logger:  slog.Default(),
	}
}

// NewRegistryFromConfig builds a client for every enabled provider that has an API key.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// RegisterLLM adds a prebuilt client under name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{client: client}
	r.logger.Debug("registered LLM client", "name", name)
}

func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	r.logger.Debug("unregistered LLM client", "name", name)
}

func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return e.client, nil
}

func (r *Registry) HasLLM(name string) bool {
	_, err := r.GetLLM(name)
	return err == nil
}

// Limiter returns the rate limiter of a configured client, or nil.
func (r *Registry) Limiter(name string) *RateLimiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].limiter
}

// ListLLM returns the registered names in sorted order.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reload brings configured clients in line with cfg. Unchanged entries keep
// their client and limiter state.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if e.cfg == nil {
			continue
		}
		if want, ok := cfg.LLMProviders[name]; !ok || !want.usable() {
			delete(r.entries, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}

	for name, pc := range cfg.LLMProviders {
		if !pc.usable() {
			continue
		}
		prev, had := r.entries[name]
		if had && prev.cfg != nil && *prev.cfg == pc {
			continue
		}
		limiter := NewRateLimiter(pc.RateLimit)
		client, err := buildClient(pc, limiter)
		if err != nil {
			r.logger.Warn("skipping LLM provider", "name", name, "error", err)
			continue
		}
		r.entries[name] = registration{client: client, limiter: limiter, cfg: &pc}
		r.logger.Debug("configured LLM client", "name", name, "type", pc.Type, "replaced", had)
	}
}

func buildClient(cfg LLMProviderConfig, limiter *RateLimiter) (LLMClient, error) {
	switch cfg.Type {
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Limiter:      limiter,
		}), nil
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Limiter:      limiter,
		}), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
}
