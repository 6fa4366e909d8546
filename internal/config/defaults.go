package config

import (
	"os"
	"path/filepath"

	"github.com/texforge/texforge/internal/engine"
)

// Defaults mirror the orchestrator's own fallbacks so a bare config file and
// an absent config file behave identically.
const (
	DefaultListenAddr     = ":8080"
	DefaultAdminAddr      = ":9090"
	DefaultMaxSourceBytes = 10 << 20 // 10 MiB

	DefaultMaxPasses      = 3
	DefaultPerPassTimeout = "30s"
	DefaultOverallTimeout = "90s"
	DefaultMaxConcurrent  = 4

	DefaultJanitorInterval = "10m"
	DefaultJanitorMaxAge   = "1h"
)

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.AdminAddr == "" {
		cfg.Server.AdminAddr = DefaultAdminAddr
	}
	if cfg.Server.MaxSourceBytes <= 0 {
		cfg.Server.MaxSourceBytes = DefaultMaxSourceBytes
	}

	if cfg.Build.Engine == "" {
		cfg.Build.Engine = string(engine.PDFLaTeX)
	}
	if cfg.Build.MaxPasses == 0 {
		cfg.Build.MaxPasses = DefaultMaxPasses
	}
	if cfg.Build.PerPassTimeout == "" {
		cfg.Build.PerPassTimeout = DefaultPerPassTimeout
	}
	if cfg.Build.OverallTimeout == "" {
		cfg.Build.OverallTimeout = DefaultOverallTimeout
	}
	if cfg.Build.MaxConcurrent == 0 {
		cfg.Build.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Build.WorkspaceDir == "" {
		cfg.Build.WorkspaceDir = filepath.Join(os.TempDir(), "texforge")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		cfg.History.Path = "texforge-history.db"
	}

	if cfg.Janitor.Interval == "" {
		cfg.Janitor.Interval = DefaultJanitorInterval
	}
	if cfg.Janitor.MaxAge == "" {
		cfg.Janitor.MaxAge = DefaultJanitorMaxAge
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
