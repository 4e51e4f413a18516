// Package common provides shared utilities for PAGR
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for PAGR
type Config struct {
	Environment string           `toml:"environment"`
	Storage     StorageConfig    `toml:"storage"`
	Provider    ProviderConfig   `toml:"provider"`
	Enrichment  EnrichmentConfig `toml:"enrichment"`
	Valuation   ValuationConfig  `toml:"valuation"`
	Upsert      UpsertConfig     `toml:"upsert"`
	Logging     LoggingConfig    `toml:"logging"`
}

// StorageConfig selects and configures the graph store.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "surrealdb" or "memory"
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ProviderConfig holds reference/pricing provider configuration
type ProviderConfig struct {
	BaseURL         string `toml:"base_url"`
	Username        string `toml:"username"`
	APIKey          string `toml:"api_key"`
	CredentialsFile string `toml:"credentials_file"` // dotenv file with FDS_USERNAME / FDS_API_KEY
	Timeout         string `toml:"timeout"`
}

// GetTimeout parses and returns the HTTP timeout
func (c *ProviderConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// EnrichmentConfig holds the orchestrator's rate, retry and polling policy.
// Every wait the orchestrator performs is bounded by one of these values.
type EnrichmentConfig struct {
	RateLimit       int     `toml:"rate_limit"` // requests per second
	MaxInFlight     int     `toml:"max_in_flight"`
	BatchSize       int     `toml:"batch_size"`
	MaxAttempts     int     `toml:"max_attempts"`
	InitialBackoff  string  `toml:"initial_backoff"`
	MaxBackoff      string  `toml:"max_backoff"`
	MaxThrottleWait string  `toml:"max_throttle_wait"`
	PollInitial     string  `toml:"poll_initial"`
	PollMultiplier  float64 `toml:"poll_multiplier"`
	PollMaxInterval string  `toml:"poll_max_interval"`
	PollTimeout     string  `toml:"poll_timeout"`
	Deadline        string  `toml:"deadline"`
	Officers        bool    `toml:"officers"` // look up each issuer's officers for its CEO
}

func (c *EnrichmentConfig) GetInitialBackoff() time.Duration {
	return parseDuration(c.InitialBackoff, time.Second)
}

func (c *EnrichmentConfig) GetMaxBackoff() time.Duration {
	return parseDuration(c.MaxBackoff, 30*time.Second)
}

func (c *EnrichmentConfig) GetMaxThrottleWait() time.Duration {
	return parseDuration(c.MaxThrottleWait, 5*time.Minute)
}

func (c *EnrichmentConfig) GetPollInitial() time.Duration {
	return parseDuration(c.PollInitial, 2*time.Second)
}

func (c *EnrichmentConfig) GetPollMaxInterval() time.Duration {
	return parseDuration(c.PollMaxInterval, 30*time.Second)
}

func (c *EnrichmentConfig) GetPollTimeout() time.Duration {
	return parseDuration(c.PollTimeout, 2*time.Minute)
}

// GetDeadline returns the overall enrichment deadline. Zero means no deadline
// beyond the caller's context.
func (c *EnrichmentConfig) GetDeadline() time.Duration {
	return parseDuration(c.Deadline, 30*time.Minute)
}

// Price precedence values for ValuationConfig.PricePrecedence.
const (
	PricePrecedenceProvider = "provider"
	PricePrecedenceInput    = "input"
)

// ValuationConfig controls how a position's market value is derived.
type ValuationConfig struct {
	// PricePrecedence decides whether an enriched price or a supplied
	// current value wins when both exist. The loser is the fallback.
	PricePrecedence string `toml:"price_precedence"`
}

// UpsertConfig holds graph upsert engine configuration
type UpsertConfig struct {
	Workers int `toml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "pagr",
			Database:  "graph",
			Username:  "root",
			Password:  "root",
		},
		Provider: ProviderConfig{
			BaseURL:         "https://api.factset.com",
			CredentialsFile: "fds-api.key",
			Timeout:         "30s",
		},
		Enrichment: EnrichmentConfig{
			RateLimit:       10,
			MaxInFlight:     10,
			BatchSize:       10,
			MaxAttempts:     3,
			InitialBackoff:  "1s",
			MaxBackoff:      "30s",
			MaxThrottleWait: "5m",
			PollInitial:     "2s",
			PollMultiplier:  1.5,
			PollMaxInterval: "30s",
			PollTimeout:     "2m",
			Deadline:        "30m",
			Officers:        true,
		},
		Valuation: ValuationConfig{
			PricePrecedence: PricePrecedenceProvider,
		},
		Upsert: UpsertConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := loadProviderCredentials(&config.Provider); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PAGR_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("PAGR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("PAGR_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}
	if addr := os.Getenv("PAGR_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if v := os.Getenv("PAGR_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("PAGR_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("PAGR_PROVIDER_URL"); v != "" {
		config.Provider.BaseURL = v
	}
	if v := os.Getenv("FDS_USERNAME"); v != "" {
		config.Provider.Username = v
	}
	if v := os.Getenv("FDS_API_KEY"); v != "" {
		config.Provider.APIKey = v
	}

	if v := os.Getenv("PAGR_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Enrichment.RateLimit = n
		}
	}

	if v := os.Getenv("PAGR_PRICE_PRECEDENCE"); v != "" {
		config.Valuation.PricePrecedence = strings.ToLower(v)
	}
}

// loadProviderCredentials fills username/API key from the credentials file
// when they were not set by config or environment. A missing file is not an error.
func loadProviderCredentials(p *ProviderConfig) error {
	if p.Username != "" && p.APIKey != "" {
		return nil
	}
	if p.CredentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(p.CredentialsFile); os.IsNotExist(err) {
		return nil
	}

	creds, err := godotenv.Read(p.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to read credentials file %s: %w", p.CredentialsFile, err)
	}
	if p.Username == "" {
		p.Username = creds["FDS_USERNAME"]
	}
	if p.APIKey == "" {
		p.APIKey = creds["FDS_API_KEY"]
	}
	return nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "surrealdb", "memory":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.Valuation.PricePrecedence {
	case PricePrecedenceProvider, PricePrecedenceInput:
	default:
		return fmt.Errorf("unsupported price precedence %q (want %q or %q)",
			c.Valuation.PricePrecedence, PricePrecedenceProvider, PricePrecedenceInput)
	}
	if c.Enrichment.RateLimit <= 0 {
		return fmt.Errorf("enrichment rate_limit must be positive, got %d", c.Enrichment.RateLimit)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
