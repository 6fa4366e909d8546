// Package janitor periodically removes orphaned job workspaces. Workspaces
// are normally released by the orchestrator; the janitor only catches
// leftovers from crashes or unclean shutdowns.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/texforge/texforge/internal/logfields"
	"github.com/texforge/texforge/internal/workspace"
)

// Janitor sweeps the workspace base directory on a fixed interval.
type Janitor struct {
	baseDir   string
	maxAge    time.Duration
	scheduler gocron.Scheduler
}

// New creates a janitor sweeping baseDir for job directories older than maxAge.
func New(baseDir string, interval, maxAge time.Duration) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %v", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	j := &Janitor{baseDir: baseDir, maxAge: maxAge, scheduler: s}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.sweepTask),
		gocron.WithName("workspace-sweep"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return j, nil
}

// Start begins periodic sweeping.
func (j *Janitor) Start() {
	slog.Info("Starting workspace janitor",
		logfields.Path(j.baseDir), slog.Duration("max_age", j.maxAge))
	j.scheduler.Start()
}

// Stop shuts the scheduler down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweepTask() {
	removed, err := j.Sweep(context.Background())
	if err != nil {
		slog.Warn("Workspace sweep failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Removed orphaned workspaces", slog.Int("count", removed))
	}
}

// Sweep removes job directories under the base directory whose modification
// time is older than maxAge. It returns the number of directories removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace base: %w", err)
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspace.DirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove orphaned workspace", logfields.Path(path), logfields.Error(err))
			continue
		}
		slog.Debug("Removed orphaned workspace", logfields.Path(path))
		removed++
	}
	return removed, nil
}
