//go:build !windows

package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeEngine writes a shell script standing in for a TeX binary.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o750); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

func TestRunPassCapturesOutputAndExitCode(t *testing.T) {
	bin := fakeEngine(t, `echo "This is pdfTeX"; echo "! Undefined control sequence." ; exit 1`)
	d := NewDriverForBinary(bin, 5*time.Second)

	res, err := d.RunPass(context.Background(), t.TempDir(), 1)
	if err != nil {
		t.Fatalf("RunPass returned error for plain compile failure: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", res.ExitCode)
	}
	if !strings.Contains(string(res.Output), "Undefined control sequence") {
		t.Errorf("output not captured: %q", res.Output)
	}
	if res.Pass != 1 {
		t.Errorf("pass index not propagated: %d", res.Pass)
	}
}

func TestRunPassCleanExit(t *testing.T) {
	bin := fakeEngine(t, `echo "Output written on document.pdf (1 page)"; exit 0`)
	d := NewDriverForBinary(bin, 5*time.Second)

	res, err := d.RunPass(context.Background(), t.TempDir(), 2)
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected clean exit, got %d", res.ExitCode)
	}
	if res.Duration <= 0 {
		t.Error("duration should be measured")
	}
}

func TestRunPassWorksInWorkspaceDir(t *testing.T) {
	dir := t.TempDir()
	bin := fakeEngine(t, `pwd; touch ran-here`)
	d := NewDriverForBinary(bin, 5*time.Second)

	res, err := d.RunPass(context.Background(), dir, 1)
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if !strings.Contains(string(res.Output), dir) {
		t.Errorf("engine should run inside the workspace, output: %q", res.Output)
	}
	if _, err := os.Stat(filepath.Join(dir, "ran-here")); err != nil {
		t.Errorf("engine file writes should land in the workspace: %v", err)
	}
}

func TestRunPassTimeoutKillsProcessTree(t *testing.T) {
	dir := t.TempDir()
	// The engine spawns a child; both must be gone after the timeout.
	bin := fakeEngine(t, `sleep 60 & echo $! > child.pid; sleep 60`)
	d := NewDriverForBinary(bin, 150*time.Millisecond)

	start := time.Now()
	_, err := d.RunPass(context.Background(), dir, 1)
	if !errors.Is(err, ErrPassTimeout) {
		t.Fatalf("expected ErrPassTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("RunPass took too long to return: %v", elapsed)
	}

	pidData, readErr := os.ReadFile(filepath.Join(dir, "child.pid"))
	if readErr != nil {
		t.Skipf("child pid not recorded: %v", readErr)
	}
	pid := strings.TrimSpace(string(pidData))
	// Give the kernel a moment to reap the group.
	time.Sleep(100 * time.Millisecond)
	out, _ := exec.Command("ps", "-p", pid, "-o", "stat=").Output()
	stat := strings.TrimSpace(string(out))
	if stat != "" && !strings.HasPrefix(stat, "Z") {
		t.Errorf("child process %s still alive with stat %q", pid, stat)
	}
}

func TestRunPassCancellation(t *testing.T) {
	bin := fakeEngine(t, `sleep 60`)
	d := NewDriverForBinary(bin, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := d.RunPass(ctx, t.TempDir(), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunPassMissingBinary(t *testing.T) {
	d := NewDriverForBinary(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)
	_, err := d.RunPass(context.Background(), t.TempDir(), 1)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestNewDriverUnknownVariant(t *testing.T) {
	if _, err := NewDriver(Variant("teximaginary"), time.Second); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable for unknown variant, got %v", err)
	}
}

func TestVariantValidation(t *testing.T) {
	for _, v := range []Variant{PDFLaTeX, XeLaTeX, LuaLaTeX} {
		if !v.Valid() {
			t.Errorf("%s should be valid", v)
		}
	}
	if Variant("latexmk").Valid() {
		t.Error("unsupported variants must be rejected")
	}
}
