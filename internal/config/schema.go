package config

import (
	"time"

	"github.com/jackzampolin/spires/internal/cache"
	"github.com/jackzampolin/spires/internal/completion"
	"github.com/jackzampolin/spires/internal/ontology"
)

// Config holds spires configuration.
// Stored at: ~/.spires/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Cache        CacheCfg                  `mapstructure:"cache" yaml:"cache"`
	Ontology     OntologyCfg               `mapstructure:"ontology" yaml:"ontology"`
	Audit        AuditCfg                  `mapstructure:"audit" yaml:"audit"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	// Type is "openrouter" or "openai".
	Type  string `mapstructure:"type" yaml:"type"`
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey supports ${ENV_VAR} syntax.
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	// RateLimit is in requests per minute.
	RateLimit int  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg holds extraction defaults that CLI flags override.
type DefaultsCfg struct {
	LLMProvider        string  `mapstructure:"llm_provider" yaml:"llm_provider"`
	Model              string  `mapstructure:"model" yaml:"model"`
	Template           string  `mapstructure:"template" yaml:"template"`
	AutoPrefix         string  `mapstructure:"auto_prefix" yaml:"auto_prefix"`
	Recurse            bool    `mapstructure:"recurse" yaml:"recurse"`
	SentencesPerWindow int     `mapstructure:"sentences_per_window" yaml:"sentences_per_window"`
	MaxGenLen          int     `mapstructure:"max_gen_len" yaml:"max_gen_len"`
	Temperature        float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP               float64 `mapstructure:"top_p" yaml:"top_p"`
}

// CacheCfg selects the completion cache.
type CacheCfg struct {
	// Backend is sqlite, redis or none.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the sqlite file; empty uses ~/.spires/cache.db.
	Path       string `mapstructure:"path" yaml:"path"`
	RedisURL   string `mapstructure:"redis_url" yaml:"redis_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

// OntologyCfg configures term lookups.
type OntologyCfg struct {
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url"`
	RateLimit      float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	CacheSize      int      `mapstructure:"cache_size" yaml:"cache_size"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries" yaml:"max_retries"`
	Offline        bool     `mapstructure:"offline" yaml:"offline"`
	Skip           []string `mapstructure:"skip" yaml:"skip"`
	Dictionary     string   `mapstructure:"dictionary" yaml:"dictionary"`
}

// AuditCfg configures where completion calls are recorded.
type AuditCfg struct {
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 500,
				Enabled:   true,
			},
			"openrouter": {
				Type:      "openrouter",
				Model:     "anthropic/claude-sonnet-4",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 150,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openai",
			Template:    "mendelian_disease",
			AutoPrefix:  "AUTO",
			Recurse:     true,
			MaxGenLen:   16000,
			Temperature: completion.DefaultTemperature,
			TopP:        completion.DefaultTopP,
		},
		Cache: CacheCfg{
			Backend: cache.BackendSQLite,
		},
		Ontology: OntologyCfg{
			BaseURL:        ontology.DefaultOLSBaseURL,
			RateLimit:      5,
			CacheSize:      4096,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// CacheOptions converts the cache section. defaultPath is used when no sqlite
// path is configured.
func (c *Config) CacheOptions(defaultPath string) cache.Options {
	path := c.Cache.Path
	if path == "" {
		path = defaultPath
	}
	return cache.Options{
		Backend:  c.Cache.Backend,
		Path:     path,
		RedisURL: ResolveEnvVars(c.Cache.RedisURL),
		TTL:      time.Duration(c.Cache.TTLSeconds) * time.Second,
	}
}

// OntologyConfig converts the ontology section. The dictionary file is loaded
// by the caller.
func (c *Config) OntologyConfig() ontology.RegistryConfig {
	return ontology.RegistryConfig{
		OLS: ontology.OLSConfig{
			BaseURL:    c.Ontology.BaseURL,
			Timeout:    time.Duration(c.Ontology.TimeoutSeconds) * time.Second,
			RateLimit:  c.Ontology.RateLimit,
			MaxRetries: c.Ontology.MaxRetries,
		},
		Skip:           c.Ontology.Skip,
		Offline:        c.Ontology.Offline,
		LabelCacheSize: c.Ontology.CacheSize,
	}
}

// CompleteOptions returns the generation settings of the defaults section.
func (c *Config) CompleteOptions() completion.CompleteOptions {
	opts := completion.DefaultOptions()
	if c.Defaults.MaxGenLen > 0 {
		opts.MaxGenLen = c.Defaults.MaxGenLen
	}
	if c.Defaults.Temperature > 0 {
		opts.Temperature = c.Defaults.Temperature
	}
	if c.Defaults.TopP > 0 {
		opts.TopP = c.Defaults.TopP
	}
	return opts
}
