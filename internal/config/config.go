package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendSilicon   = "silicon"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// DefaultContextWindow is the number of conversation turns forwarded to the
// provider when a request does not pick its own window.
const DefaultContextWindow = 5

// ProviderConfig overrides one provider's endpoint and credentials.
type ProviderConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	APIKeyEnv    string `yaml:"api_key_env"`
	DefaultModel string `yaml:"default_model"`
}

// Config holds application configuration
type Config struct {
	Addr            string `yaml:"addr"`
	DefaultProvider string `yaml:"default_provider"`
	ContextWindow   int    `yaml:"context_window"`
	Debug           bool   `yaml:"debug"`

	// Session store backing: "memory" or "sqlite".
	StoreBacking string `yaml:"store_backing"`
	StoreDSN     string `yaml:"store_dsn"`

	// Response cache for identical prompts.
	CacheEnabled    bool `yaml:"cache_enabled"`
	CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`

	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:            ":8000",
		DefaultProvider: BackendSilicon,
		ContextWindow:   DefaultContextWindow,
		StoreBacking:    StoreMemory,
		StoreDSN:        "relaychat.db",
		CacheTTLSeconds: 300,
		Providers:       map[string]ProviderConfig{},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.StoreBacking != StoreMemory && cfg.StoreBacking != StoreSQLite {
		return Config{}, fmt.Errorf("unknown store backing %q", cfg.StoreBacking)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DEFAULT_PROVIDER"); v != "" {
		c.DefaultProvider = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SESSION_STORE"); v != "" {
		c.StoreBacking = v
	}
	if v := os.Getenv("SESSION_DSN"); v != "" {
		c.StoreDSN = v
	}
	if v := os.Getenv("CONTEXT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ContextWindow = n
		}
	}
}
