package config

import (
	"errors"
	"fmt"
	"unicode"
)

var (
	// ErrNoDefault is returned when no default value exists for a config key.
	ErrNoDefault = errors.New("no default exists")

	// ErrInvalidKey is returned when a config key contains invalid characters.
	ErrInvalidKey = errors.New("invalid config key")
)

// Entry is one documented configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// DefaultEntries returns every documented key with its default. The keys are
// viper paths and are installed as viper defaults by NewManager.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	openai := d.LLMProviders["openai"]
	openrouter := d.LLMProviders["openrouter"]

	return []Entry{
		// ===================
		// LLM Providers
		// ===================

		// LLM Providers - OpenAI
		{
			Key:         "llm_providers.openai.type",
			Value:       openai.Type,
			Description: "LLM provider type for OpenAI",
		},
		{
			Key:         "llm_providers.openai.model",
			Value:       openai.Model,
			Description: "Default model for OpenAI",
		},
		{
			Key:         "llm_providers.openai.api_key",
			Value:       openai.APIKey,
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "llm_providers.openai.rate_limit",
			Value:       openai.RateLimit,
			Description: "Rate limit in requests per minute for OpenAI",
		},
		{
			Key:         "llm_providers.openai.enabled",
			Value:       openai.Enabled,
			Description: "Whether the OpenAI provider is enabled",
		},

		// LLM Providers - OpenRouter
		{
			Key:         "llm_providers.openrouter.type",
			Value:       openrouter.Type,
			Description: "LLM provider type for OpenRouter",
		},
		{
			Key:         "llm_providers.openrouter.model",
			Value:       openrouter.Model,
			Description: "Default model for OpenRouter",
		},
		{
			Key:         "llm_providers.openrouter.api_key",
			Value:       openrouter.APIKey,
			Description: "OpenRouter API key (uses environment variable)",
		},
		{
			Key:         "llm_providers.openrouter.rate_limit",
			Value:       openrouter.RateLimit,
			Description: "Rate limit in requests per minute for OpenRouter",
		},
		{
			Key:         "llm_providers.openrouter.enabled",
			Value:       openrouter.Enabled,
			Description: "Whether the OpenRouter provider is enabled",
		},

		// ===================
		// Extraction Defaults
		// ===================
		{
			Key:         "defaults.llm_provider",
			Value:       d.Defaults.LLMProvider,
			Description: "Provider used when --model does not name one",
		},
		{
			Key:         "defaults.model",
			Value:       d.Defaults.Model,
			Description: "Model override; empty uses the provider's model",
		},
		{
			Key:         "defaults.template",
			Value:       d.Defaults.Template,
			Description: "Template used when -t is not given",
		},
		{
			Key:         "defaults.auto_prefix",
			Value:       d.Defaults.AutoPrefix,
			Description: "Prefix of generated identifiers",
		},
		{
			Key:         "defaults.recurse",
			Value:       d.Defaults.Recurse,
			Description: "Complete every inlined value separately instead of splitting small ones",
		},
		{
			Key:         "defaults.sentences_per_window",
			Value:       d.Defaults.SentencesPerWindow,
			Description: "Extract from windows of this many sentences (0 disables chunking)",
		},
		{
			Key:         "defaults.max_gen_len",
			Value:       d.Defaults.MaxGenLen,
			Description: "Maximum tokens generated per completion",
		},
		{
			Key:         "defaults.temperature",
			Value:       d.Defaults.Temperature,
			Description: "Sampling temperature",
		},
		{
			Key:         "defaults.top_p",
			Value:       d.Defaults.TopP,
			Description: "Nucleus sampling probability",
		},

		// ===================
		// Completion Cache
		// ===================
		{
			Key:         "cache.backend",
			Value:       d.Cache.Backend,
			Description: "Completion cache backend: sqlite, redis or none",
		},
		{
			Key:         "cache.path",
			Value:       d.Cache.Path,
			Description: "SQLite cache file; empty uses ~/.spires/cache.db",
		},
		{
			Key:         "cache.redis_url",
			Value:       d.Cache.RedisURL,
			Description: "Redis URL for the redis backend (supports ${ENV_VAR})",
		},
		{
			Key:         "cache.ttl_seconds",
			Value:       d.Cache.TTLSeconds,
			Description: "Expiry of redis cache entries in seconds (0 keeps forever)",
		},

		// ===================
		// Ontology Lookups
		// ===================
		{
			Key:         "ontology.base_url",
			Value:       d.Ontology.BaseURL,
			Description: "Ontology Lookup Service endpoint",
		},
		{
			Key:         "ontology.rate_limit",
			Value:       d.Ontology.RateLimit,
			Description: "Rate limit in requests per second for ontology lookups",
		},
		{
			Key:         "ontology.cache_size",
			Value:       d.Ontology.CacheSize,
			Description: "Number of labels kept in memory",
		},
		{
			Key:         "ontology.timeout_seconds",
			Value:       d.Ontology.TimeoutSeconds,
			Description: "HTTP timeout in seconds for ontology requests",
		},
		{
			Key:         "ontology.max_retries",
			Value:       d.Ontology.MaxRetries,
			Description: "Maximum retry attempts for failed ontology requests",
		},
		{
			Key:         "ontology.offline",
			Value:       d.Ontology.Offline,
			Description: "Disable remote ontology lookups",
		},
		{
			Key:         "ontology.skip",
			Value:       d.Ontology.Skip,
			Description: "Annotator specs to ignore, matched by prefix",
		},
		{
			Key:         "ontology.dictionary",
			Value:       d.Ontology.Dictionary,
			Description: "YAML term dictionary used for offline grounding",
		},

		// ===================
		// Audit
		// ===================
		{
			Key:         "audit.postgres_url",
			Value:       d.Audit.PostgresURL,
			Description: "Record every completion to this PostgreSQL database (supports ${ENV_VAR})",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// LookupDefault validates key and returns its default entry.
func LookupDefault(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	def := GetDefault(key)
	if def == nil {
		return nil, fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return def, nil
}
