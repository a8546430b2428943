package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands ${VAR} environment variables
// before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a runnable configuration without a config file: in-memory
// store, both providers enabled, text logging to stderr.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			CoinGecko: CoinGeckoConfig{Enabled: true},
			Stooq:     StooqConfig{Enabled: true},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Providers.CoinGecko.RequestsPerMinute == 0 {
		c.Providers.CoinGecko.RequestsPerMinute = 30
	}
	if c.Providers.CoinGecko.Burst == 0 {
		c.Providers.CoinGecko.Burst = 5
	}
	if c.Providers.Stooq.RequestsPerMinute == 0 {
		c.Providers.Stooq.RequestsPerMinute = 60
	}
	if c.Providers.Stooq.Burst == 0 {
		c.Providers.Stooq.Burst = 5
	}
	if c.Manager.Concurrency == 0 {
		c.Manager.Concurrency = 8
	}
	if c.Manager.SearchCacheTTL == 0 {
		c.Manager.SearchCacheTTL = 10 * time.Minute
	}
}

// Validate rejects configurations the service could not run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Manager.Concurrency < 1 {
		return fmt.Errorf("manager concurrency must be at least 1, got %d", c.Manager.Concurrency)
	}
	if !c.Providers.CoinGecko.Enabled && !c.Providers.Stooq.Enabled {
		return fmt.Errorf("no providers enabled")
	}
	return nil
}
