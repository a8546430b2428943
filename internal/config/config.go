// Package config loads the service configuration from YAML with ${VAR}
// environment expansion.
package config

import "time"

// Config is the root configuration of the pricing service.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Manager   ManagerConfig   `yaml:"manager"`
}

// LogConfig controls level, format and optional file rotation.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	// File enables rotating file output when non-empty; stderr otherwise.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DatabaseConfig selects the price store backend. An empty URL runs the
// service on the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Stooq     StooqConfig     `yaml:"stooq"`
}

type CoinGeckoConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// RequestsPerMinute caps calls to the upstream API; 0 disables limiting.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type StooqConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BaseURL           string `yaml:"base_url"`
	Currency          string `yaml:"currency"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
}

// ManagerConfig tunes the orchestration layer.
type ManagerConfig struct {
	// Concurrency bounds parallel provider calls within one bulk refresh.
	Concurrency int64 `yaml:"concurrency"`
	// SearchCacheTTL controls how long provider search results are reused.
	SearchCacheTTL time.Duration `yaml:"search_cache_ttl"`
}
