// Package config loads and validates the service configuration: YAML file
// with environment expansion, .env support, defaults, and hot reload of the
// build limits.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/retry"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Build   BuildConfig   `yaml:"build"`
	History HistoryConfig `yaml:"history"`
	Events  EventsConfig  `yaml:"events"`
	Janitor JanitorConfig `yaml:"janitor"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"` // render API
	AdminAddr  string `yaml:"admin_addr"`  // metrics + admin endpoints
	// MaxSourceBytes bounds accepted request bodies.
	MaxSourceBytes int64 `yaml:"max_source_bytes"`
}

// BuildConfig holds the compilation limits handed to the orchestrator.
type BuildConfig struct {
	Engine         string `yaml:"engine"`           // pdflatex|xelatex|lualatex
	MaxPasses      int    `yaml:"max_passes"`       // >= 1
	PerPassTimeout string `yaml:"per_pass_timeout"` // duration string
	OverallTimeout string `yaml:"overall_timeout"`  // duration string
	MaxConcurrent  int    `yaml:"max_concurrent"`   // admission ceiling
	WorkspaceDir   string `yaml:"workspace_dir"`    // base for job workspaces

	// Git source fetch retry settings (transient network failures only).
	FetchRetryBackoff      string `yaml:"fetch_retry_backoff"` // fixed|linear|exponential
	FetchRetryInitialDelay string `yaml:"fetch_retry_initial_delay"`
	FetchRetryMaxDelay     string `yaml:"fetch_retry_max_delay"`
	FetchMaxRetries        int    `yaml:"fetch_max_retries"`
}

// HistoryConfig controls the terminal-result store used by the status API.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // sqlite file, ":memory:" for ephemeral
}

// EventsConfig controls optional lifecycle event publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"` // empty disables publishing
	Subject string `yaml:"subject"`
}

// JanitorConfig controls the orphaned-workspace sweeper.
type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"` // sweep period
	MaxAge   string `yaml:"max_age"`  // workspaces older than this are orphans
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Load loads configuration from the specified file. A missing file yields
// pure defaults so the service starts without any configuration.
func Load(configPath string) (*Config, error) {
	// Load .env files if present; existing process env wins.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "Note: %s couldn't be loaded: %v\n", envPath, err)
			}
			break
		}
	}

	cfg := &Config{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				applyDefaults(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants not covered by defaulting.
func (c *Config) Validate() error {
	if !engine.Variant(c.Build.Engine).Valid() {
		return fmt.Errorf("build.engine: unsupported engine %q", c.Build.Engine)
	}
	if c.Build.MaxPasses < 1 {
		return fmt.Errorf("build.max_passes must be >= 1, got %d", c.Build.MaxPasses)
	}
	if _, err := time.ParseDuration(c.Build.PerPassTimeout); err != nil {
		return fmt.Errorf("build.per_pass_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Build.OverallTimeout); err != nil {
		return fmt.Errorf("build.overall_timeout: %w", err)
	}
	if c.Build.MaxConcurrent < 1 {
		return fmt.Errorf("build.max_concurrent must be >= 1, got %d", c.Build.MaxConcurrent)
	}
	if c.Janitor.Enabled {
		if _, err := time.ParseDuration(c.Janitor.Interval); err != nil {
			return fmt.Errorf("janitor.interval: %w", err)
		}
		if _, err := time.ParseDuration(c.Janitor.MaxAge); err != nil {
			return fmt.Errorf("janitor.max_age: %w", err)
		}
	}
	return nil
}

// PerPassTimeout returns the parsed per-pass budget.
func (b BuildConfig) PerPassDuration() time.Duration {
	d, _ := time.ParseDuration(b.PerPassTimeout)
	return d
}

// OverallDuration returns the parsed per-job budget.
func (b BuildConfig) OverallDuration() time.Duration {
	d, _ := time.ParseDuration(b.OverallTimeout)
	return d
}

// FetchRetryPolicy builds the retry policy for git source fetches.
func (b BuildConfig) FetchRetryPolicy() retry.Policy {
	initial, _ := time.ParseDuration(b.FetchRetryInitialDelay)
	maxDelay, _ := time.ParseDuration(b.FetchRetryMaxDelay)
	return retry.NewPolicy(retry.BackoffMode(b.FetchRetryBackoff), initial, maxDelay, b.FetchMaxRetries)
}

// JanitorInterval returns the parsed sweep period.
func (j JanitorConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(j.Interval)
	return d
}

// MaxAgeDuration returns the parsed orphan age threshold.
func (j JanitorConfig) MaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(j.MaxAge)
	return d
}
