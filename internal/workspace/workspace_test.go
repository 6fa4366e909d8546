package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	mgr := NewManager(t.TempDir())

	h, err := mgr.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if !strings.Contains(filepath.Base(h.Dir()), DirPrefix) {
		t.Errorf("expected prefixed directory, got: %s", h.Dir())
	}
	if _, err := os.Stat(h.Dir()); os.IsNotExist(err) {
		t.Errorf("workspace directory does not exist: %s", h.Dir())
	}

	if err := mgr.Release(h); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, err := os.Stat(h.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after release: %s", h.Dir())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	mgr := NewManager(t.TempDir())
	h, err := mgr.Acquire("job-2")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := mgr.Release(h); err != nil {
			t.Fatalf("Release() call %d failed: %v", i+1, err)
		}
	}
	if err := mgr.Release(nil); err != nil {
		t.Fatalf("Release(nil) failed: %v", err)
	}
}

func TestAcquireRejectsDuplicateJobID(t *testing.T) {
	mgr := NewManager(t.TempDir())
	h, err := mgr.Acquire("job-3")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer func() { _ = mgr.Release(h) }()

	if _, err := mgr.Acquire("job-3"); err == nil {
		t.Fatal("expected second Acquire with same job ID to fail")
	}
}

func TestWriteSourceAndArtifact(t *testing.T) {
	mgr := NewManager(t.TempDir())
	h, err := mgr.Acquire("job-4")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer func() { _ = mgr.Release(h) }()

	if err := h.WriteSource([]byte(`\documentclass{article}`)); err != nil {
		t.Fatalf("WriteSource() failed: %v", err)
	}
	if h.ArtifactReady() {
		t.Error("artifact should not be ready before the engine ran")
	}
	if _, err := h.ReadArtifact(); err == nil {
		t.Error("ReadArtifact should fail with no artifact present")
	}

	pdf := []byte("%PDF-1.5 fake")
	if err := os.WriteFile(filepath.Join(h.Dir(), ArtifactFileName), pdf, 0o640); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if !h.ArtifactReady() {
		t.Error("artifact should be ready")
	}
	got, err := h.ReadArtifact()
	if err != nil {
		t.Fatalf("ReadArtifact() failed: %v", err)
	}
	if string(got) != string(pdf) {
		t.Errorf("artifact bytes mismatch: %q", got)
	}
}

func TestEmptyArtifactNotReady(t *testing.T) {
	mgr := NewManager(t.TempDir())
	h, err := mgr.Acquire("job-5")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer func() { _ = mgr.Release(h) }()

	if err := os.WriteFile(filepath.Join(h.Dir(), ArtifactFileName), nil, 0o640); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if h.ArtifactReady() {
		t.Error("zero-byte artifact must not count as ready")
	}
}

func TestAuxFingerprint(t *testing.T) {
	mgr := NewManager(t.TempDir())
	h, err := mgr.Acquire("job-6")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer func() { _ = mgr.Release(h) }()

	fp0, err := h.AuxFingerprint()
	if err != nil {
		t.Fatalf("AuxFingerprint() failed: %v", err)
	}

	aux := filepath.Join(h.Dir(), "document.aux")
	if err := os.WriteFile(aux, []byte(`\relax`), 0o640); err != nil {
		t.Fatalf("write aux: %v", err)
	}
	fp1, err := h.AuxFingerprint()
	if err != nil {
		t.Fatalf("AuxFingerprint() failed: %v", err)
	}
	if fp1 == fp0 {
		t.Error("fingerprint should change when an aux file appears")
	}

	// Unrelated files (the log) must not affect the fingerprint.
	if err := os.WriteFile(filepath.Join(h.Dir(), "document.log"), []byte("noise"), 0o640); err != nil {
		t.Fatalf("write log: %v", err)
	}
	fp2, err := h.AuxFingerprint()
	if err != nil {
		t.Fatalf("AuxFingerprint() failed: %v", err)
	}
	if fp2 != fp1 {
		t.Error("fingerprint must ignore non-aux files")
	}

	if err := os.WriteFile(aux, []byte(`\relax \newlabel{sec:x}`), 0o640); err != nil {
		t.Fatalf("rewrite aux: %v", err)
	}
	fp3, err := h.AuxFingerprint()
	if err != nil {
		t.Fatalf("AuxFingerprint() failed: %v", err)
	}
	if fp3 == fp2 {
		t.Error("fingerprint should change when aux content changes")
	}
}
