// Package config loads the service's on-disk YAML configuration, layered
// under environment variable overrides, following the same two-layer
// pattern used throughout the codebase for persistence configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerSection   `yaml:"server"`
	Database DatabaseSection `yaml:"database"`
	Provider ProviderSection `yaml:"provider"`
	RateLimit RateLimitSection `yaml:"rate_limit"`
	CORS     CORSSection     `yaml:"cors"`
	Popular  []PopularEntry  `yaml:"popular_quotes"`
}

type ServerSection struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseSection struct {
	Path string `yaml:"path"`
}

type ProviderSection struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type RateLimitSection struct {
	MaxPerMinute  int   `yaml:"max_per_minute"`
	MaxPerHour    int   `yaml:"max_per_hour"`
	MinIntervalMS int64 `yaml:"min_interval_ms"`
}

type CORSSection struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PopularEntry names a (symbol, asset_type) pair the hourly maintenance
// sweep keeps warm.
type PopularEntry struct {
	Symbol    string `yaml:"symbol"`
	AssetType string `yaml:"asset_type"`
}

// Default returns the built-in configuration used when no YAML file and
// no environment overrides are present.
func Default() Config {
	return Config{
		Server:   ServerSection{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseSection{Path: "vn_market.db"},
		Provider: ProviderSection{BaseURL: "https://api.vnstock.example/v1", RequestTimeout: 10 * time.Second},
		RateLimit: RateLimitSection{MaxPerMinute: 60, MaxPerHour: 500, MinIntervalMS: 100},
		CORS:     CORSSection{AllowedOrigins: []string{"*"}},
	}
}

// Load reads path (if non-empty and present) as YAML over the defaults,
// then applies environment variable overrides. Per VNMARKET_CONFIG
// convention, an empty path falls back to that variable before finally
// accepting no file at all.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VNMARKET_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("SERVICE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVICE_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = v
		}
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	if baseURL := os.Getenv("PROVIDER_BASE_URL"); baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
}

// Validate checks the invariants the rest of the service assumes hold.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.RateLimit.MaxPerMinute <= 0 {
		return fmt.Errorf("config: rate_limit.max_per_minute must be positive")
	}
	return nil
}
