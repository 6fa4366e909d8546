package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepRemovesOnlyOldJobDirs(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, "texforge-aaaa")
	fresh := filepath.Join(base, "texforge-bbbb")
	unrelated := filepath.Join(base, "keepme")
	for _, dir := range []string{old, fresh, unrelated} {
		if err := os.Mkdir(dir, 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	j, err := New(base, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = j.Stop() }()

	removed, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale job dir should be gone")
	}
	for _, dir := range []string{fresh, unrelated} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should survive: %v", dir, err)
		}
	}
}

func TestSweepMissingBaseDir(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "absent"), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = j.Stop() }()

	removed, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep on missing base should be a no-op, got %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removals, got %d", removed)
	}
}

func TestNewRejectsBadInterval(t *testing.T) {
	if _, err := New(t.TempDir(), 0, time.Hour); err == nil {
		t.Error("zero interval must be rejected")
	}
}
