package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texforge/texforge/internal/admission"
	"github.com/texforge/texforge/internal/compile"
	"github.com/texforge/texforge/internal/config"
	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/workspace"
)

// runCompile compiles one document from the command line, bypassing the HTTP
// surface but using the same orchestrator.
func runCompile(cfg *config.Config) error {
	source, err := os.ReadFile(CLI.Compile.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	opts := compile.Options{
		MaxPasses:      cfg.Build.MaxPasses,
		PerPassTimeout: cfg.Build.PerPassDuration(),
		OverallTimeout: cfg.Build.OverallDuration(),
		Engine:         engine.Variant(cfg.Build.Engine),
	}
	if CLI.Compile.Engine != "" {
		v := engine.Variant(CLI.Compile.Engine)
		if !v.Valid() {
			return fmt.Errorf("unsupported engine %q", CLI.Compile.Engine)
		}
		opts.Engine = v
	}
	if CLI.Compile.MaxPasses > 0 {
		opts.MaxPasses = CLI.Compile.MaxPasses
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := workspace.NewManager(cfg.Build.WorkspaceDir)
	orch := compile.NewOrchestrator(ws, admission.New(1))

	res := orch.Build(ctx, source, opts)
	if !res.Succeeded() {
		if res.Failure.Log != "" {
			fmt.Fprintln(os.Stderr, res.Failure.Log)
		}
		return fmt.Errorf("compilation failed (%s): %s", res.Failure.Kind, res.Failure.Diagnostic.Message)
	}

	if err := os.WriteFile(CLI.Compile.Output, res.Artifact, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("%s: %d pages, %d passes, %s\n", CLI.Compile.Output, res.Pages, res.Passes, res.Duration.Round(10*time.Millisecond))
	return nil
}
