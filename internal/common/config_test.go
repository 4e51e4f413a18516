package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Enrichment.RateLimit != 10 {
		t.Errorf("RateLimit default = %d, want 10", cfg.Enrichment.RateLimit)
	}
	if cfg.Enrichment.BatchSize != 10 {
		t.Errorf("BatchSize default = %d, want 10", cfg.Enrichment.BatchSize)
	}
	if got := cfg.Enrichment.GetMaxThrottleWait(); got != 5*time.Minute {
		t.Errorf("MaxThrottleWait default = %v, want 5m", got)
	}
	if !cfg.Enrichment.Officers {
		t.Error("Officers default = false, want true")
	}
	if got := cfg.Enrichment.GetPollInitial(); got != 2*time.Second {
		t.Errorf("PollInitial default = %v, want 2s", got)
	}
	if cfg.Valuation.PricePrecedence != PricePrecedenceProvider {
		t.Errorf("PricePrecedence default = %q, want %q", cfg.Valuation.PricePrecedence, PricePrecedenceProvider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := EnrichmentConfig{
		InitialBackoff: "not-a-duration",
		MaxBackoff:     "-5s",
		Deadline:       "0",
	}
	if got := cfg.GetInitialBackoff(); got != time.Second {
		t.Errorf("GetInitialBackoff() = %v, want 1s fallback", got)
	}
	if got := cfg.GetMaxBackoff(); got != 30*time.Second {
		t.Errorf("GetMaxBackoff() = %v, want 30s fallback", got)
	}
	if got := cfg.GetDeadline(); got != 0 {
		t.Errorf("GetDeadline() = %v, want 0 (disabled)", got)
	}
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagr.toml")
	content := `
environment = "test"

[storage]
backend = "memory"

[enrichment]
rate_limit = 4
max_throttle_wait = "90s"
officers = false

[valuation]
price_precedence = "input"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PAGR_RATE_LIMIT", "7")

	cfg, err := LoadConfig(path, filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Environment != "test" {
		t.Errorf("Environment = %q, want test", cfg.Environment)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Enrichment.RateLimit != 7 {
		t.Errorf("RateLimit = %d, want env override 7", cfg.Enrichment.RateLimit)
	}
	if got := cfg.Enrichment.GetMaxThrottleWait(); got != 90*time.Second {
		t.Errorf("MaxThrottleWait = %v, want 90s", got)
	}
	if cfg.Enrichment.Officers {
		t.Error("Officers = true, want file override false")
	}
	if cfg.Valuation.PricePrecedence != PricePrecedenceInput {
		t.Errorf("PricePrecedence = %q, want input", cfg.Valuation.PricePrecedence)
	}
	// Untouched sections keep defaults
	if cfg.Enrichment.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want default 10", cfg.Enrichment.BatchSize)
	}
}

func TestLoadConfig_CredentialsFile(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "fds-api.key")
	creds := "FDS_USERNAME=\"ACME-123456\"\nFDS_API_KEY='secret-key'\n"
	if err := os.WriteFile(credPath, []byte(creds), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "pagr.toml")
	if err := os.WriteFile(cfgPath, []byte("[provider]\ncredentials_file = \""+filepath.ToSlash(credPath)+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Provider.Username != "ACME-123456" {
		t.Errorf("Username = %q, want ACME-123456", cfg.Provider.Username)
	}
	if cfg.Provider.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want secret-key", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_EnvCredentialsWinOverFile(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "fds-api.key")
	if err := os.WriteFile(credPath, []byte("FDS_USERNAME=file-user\nFDS_API_KEY=file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "pagr.toml")
	if err := os.WriteFile(cfgPath, []byte("[provider]\ncredentials_file = \""+filepath.ToSlash(credPath)+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FDS_USERNAME", "env-user")
	t.Setenv("FDS_API_KEY", "env-key")

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Provider.Username != "env-user" || cfg.Provider.APIKey != "env-key" {
		t.Errorf("credentials = %q/%q, want env values", cfg.Provider.Username, cfg.Provider.APIKey)
	}
}

func TestConfig_ValidateRejectsUnknownValues(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Backend = "badger"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = NewDefaultConfig()
	cfg.Valuation.PricePrecedence = "cost"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown price precedence")
	}

	cfg = NewDefaultConfig()
	cfg.Enrichment.RateLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero rate limit")
	}
}
