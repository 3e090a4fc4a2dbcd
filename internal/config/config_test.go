package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLMProviders["openai"].APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if cfg.Defaults.AutoPrefix != "AUTO" {
		t.Errorf("expected AUTO prefix, got %s", cfg.Defaults.AutoPrefix)
	}
	if !cfg.Defaults.Recurse {
		t.Error("expected recursive parsing of inlined values by default")
	}
	if d := GetDefault("defaults.recurse"); d == nil || d.Value != true {
		t.Errorf(`GetDefault("defaults.recurse") = %+v, want true`, d)
	}
	if _, ok := cfg.GetLLMProvider(cfg.Defaults.LLMProvider); !ok {
		t.Error("default provider is not configured")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {APIKey: "${TEST_OPENROUTER_KEY}"},
			"literal":    {APIKey: "direct-key"},
		},
	}

	if got := cfg.ResolveAPIKey("openrouter"); got != "or-key-123" {
		t.Errorf("expected or-key-123, got %s", got)
	}
	if got := cfg.ResolveAPIKey("literal"); got != "direct-key" {
		t.Errorf("expected direct-key, got %s", got)
	}
	if got := cfg.ResolveAPIKey("missing"); got != "" {
		t.Errorf("expected empty key, got %s", got)
	}
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {Type: "openai", Model: "gpt-4o", APIKey: "${TEST_OPENAI_KEY}", RateLimit: 60, Enabled: true},
		},
	}
	reg := cfg.ToProviderRegistryConfig()
	p, ok := reg.LLMProviders["openai"]
	if !ok {
		t.Fatal("openai provider missing")
	}
	if p.APIKey != "sk-test" || p.RateLimit != 60 || !p.Enabled {
		t.Errorf("unexpected provider config: %+v", p)
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.TTLSeconds = 60
	cfg.Ontology.Offline = true

	opts := cfg.CacheOptions("/tmp/cache.db")
	if opts.Path != "/tmp/cache.db" || opts.TTL != time.Minute || opts.Backend != "sqlite" {
		t.Errorf("unexpected cache options: %+v", opts)
	}

	ont := cfg.OntologyConfig()
	if !ont.Offline || ont.OLS.Timeout != 30*time.Second || ont.LabelCacheSize != 4096 {
		t.Errorf("unexpected ontology config: %+v", ont)
	}

	co := cfg.CompleteOptions()
	if co.MaxGenLen != 16000 || co.Temperature != 0.6 || co.TopP != 0.9 {
		t.Errorf("unexpected complete options: %+v", co)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# spires configuration", "llm_providers:", "template: mendelian_disease"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("default config missing %q", want)
		}
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() on default file error = %v", err)
	}
	if mgr.Get().Defaults.Template != "mendelian_disease" {
		t.Errorf("expected mendelian_disease, got %s", mgr.Get().Defaults.Template)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
defaults:
  model: gpt-4o-mini
llm_providers:
  local:
    type: openai
    api_key: direct-key
    base_url: http://localhost:8080/v1
    enabled: true
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.Model != "gpt-4o-mini" {
			t.Errorf("expected gpt-4o-mini, got %s", cfg.Defaults.Model)
		}
		if cfg.Defaults.Template != "mendelian_disease" {
			t.Errorf("expected default template to survive, got %s", cfg.Defaults.Template)
		}
		if cfg.LLMProviders["local"].BaseURL != "http://localhost:8080/v1" {
			t.Errorf("expected local provider, got %+v", cfg.LLMProviders["local"])
		}
		if _, ok := cfg.LLMProviders["openai"]; !ok {
			t.Error("expected default openai provider to be kept")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  model: a\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  model: a\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Defaults.Model
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  model: initial_value\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().Defaults.Model; got != "initial_value" {
		t.Errorf("initial value mismatch: expected initial_value, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Defaults.Model)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("defaults:\n  model: updated_value\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "updated_value" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}
	if got := mgr.Get().Defaults.Model; got != "updated_value" {
		t.Errorf("config not updated: expected updated_value, got %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"unknown default provider", func(c *Config) { c.Defaults.LLMProvider = "nope" }, true},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"redis with url", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisURL = "redis://localhost:6379/0"
		}, false},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewManager_InvalidFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("cache:\n  backend: memcached\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := NewManager(configFile); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewManager() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewManager_EnvOverride(t *testing.T) {
	t.Setenv("SPIRES_DEFAULTS_TEMPLATE", "cell_type")

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("defaults:\n  model: a\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if got := mgr.Get().Defaults.Template; got != "cell_type" {
		t.Errorf("expected env override cell_type, got %s", got)
	}
	if mgr.Path() != configFile {
		t.Errorf("Path() = %s, want %s", mgr.Path(), configFile)
	}
}
