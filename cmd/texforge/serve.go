package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/texforge/texforge/internal/admission"
	"github.com/texforge/texforge/internal/compile"
	"github.com/texforge/texforge/internal/config"
	"github.com/texforge/texforge/internal/events"
	"github.com/texforge/texforge/internal/gitsource"
	"github.com/texforge/texforge/internal/history"
	"github.com/texforge/texforge/internal/janitor"
	"github.com/texforge/texforge/internal/metrics"
	"github.com/texforge/texforge/internal/server/httpserver"
	"github.com/texforge/texforge/internal/version"
	"github.com/texforge/texforge/internal/workspace"
)

const shutdownGrace = 10 * time.Second

// runServe wires the full service and blocks until SIGINT/SIGTERM.
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := workspace.NewManager(cfg.Build.WorkspaceDir)
	sem := admission.New(cfg.Build.MaxConcurrent)
	orch := compile.NewOrchestrator(ws, sem)

	registry := prom.NewRegistry()
	orch.SetRecorder(metrics.NewPrometheusRecorder(registry))

	var pub events.Publisher = events.NoopPublisher{}
	if cfg.Events.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer natsPub.Close()
		pub = natsPub
	}
	orch.SetPublisher(pub)

	srv := httpserver.New(cfg, orch).
		WithRegistry(registry).
		WithVersion(version.Version).
		WithFetcher(gitsource.NewFetcher(cfg.Build.FetchRetryPolicy()))

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer func() { _ = store.Close() }()
		srv.WithHistory(store)
	}

	if cfg.Janitor.Enabled {
		j, err := janitor.New(cfg.Build.WorkspaceDir, cfg.Janitor.IntervalDuration(), cfg.Janitor.MaxAgeDuration())
		if err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		j.Start()
		defer func() { _ = j.Stop() }()
	}

	watcher, err := config.NewWatcher(CLI.Config, func(newCfg *config.Config) {
		srv.UpdateLimits(newCfg.Build)
	})
	if err != nil {
		slog.Warn("Config hot reload unavailable", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("Config hot reload unavailable", "error", err)
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
