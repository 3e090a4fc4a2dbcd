// Package config loads spires configuration from config.yaml, SPIRES_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/spires/internal/cache"
	"github.com/jackzampolin/spires/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. SPIRES_DEFAULTS_MODEL.
const EnvPrefix = "SPIRES"

// ErrInvalidConfig is returned when a loaded config is inconsistent.
var ErrInvalidConfig = errors.New("invalid config")

// Manager owns one viper instance and the Config decoded from it.
type Manager struct {
	v      *viper.Viper
	logger *slog.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager loads configuration. An empty cfgFile searches ./config.yaml
// then ~/.spires/config.yaml; finding neither is not an error.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{v: viper.New(), logger: slog.Default()}

	for _, e := range DefaultEntries() {
		cm.v.SetDefault(e.Key, e.Value)
	}
	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.spires")
	}

	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := cm.decode()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

// SetLogger sets the logger used for reload errors.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Path returns the config file in use, or "" when running on defaults.
func (cm *Manager) Path() string {
	return cm.v.ConfigFileUsed()
}

func (cm *Manager) decode() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback run after every successful reload.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig reloads the file whenever it changes. A reload that fails to
// decode or validate is logged and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.decode()
		if err != nil {
			cm.mu.RLock()
			logger := cm.logger
			cm.mu.RUnlock()
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := slices.Clone(cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if p := c.Defaults.LLMProvider; p != "" {
		if _, ok := c.LLMProviders[p]; !ok {
			return fmt.Errorf("%w: defaults.llm_provider %q is not in llm_providers", ErrInvalidConfig, p)
		}
	}
	switch c.Cache.Backend {
	case "", cache.BackendSQLite, cache.BackendNone:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.redis_url is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache.backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references. Unset variables expand to "".
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ToProviderRegistryConfig converts the LLM providers for providers.Registry,
// resolving ${ENV_VAR} API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	out := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig, len(c.LLMProviders)),
	}
	for name, p := range c.LLMProviders {
		out.LLMProviders[name] = providers.LLMProviderConfig{
			Type:      p.Type,
			Model:     p.Model,
			APIKey:    ResolveEnvVars(p.APIKey),
			BaseURL:   p.BaseURL,
			RateLimit: p.RateLimit,
			Enabled:   p.Enabled,
		}
	}
	return out
}

// ResolveAPIKey returns the resolved API key of a provider, or "".
func (c *Config) ResolveAPIKey(provider string) string {
	return ResolveEnvVars(c.LLMProviders[provider].APIKey)
}

const defaultHeader = `# spires configuration
# API keys use ${ENV_VAR} syntax to reference environment variables,
# e.g. export OPENAI_API_KEY=... OPENROUTER_API_KEY=...
# Any key can also be overridden as SPIRES_<SECTION>_<KEY>.

`

// WriteDefault writes DefaultConfig to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644)
}
