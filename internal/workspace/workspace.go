// Package workspace owns all per-job filesystem state: one exclusively owned
// directory per job, created on acquire and recursively removed on release.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/logfields"
)

// DirPrefix is the name prefix of every job workspace directory. The janitor
// relies on it to recognize orphaned workspaces.
const DirPrefix = "texforge-"

// ArtifactFileName is the output file the engine is expected to write.
const ArtifactFileName = "document.pdf"

// auxExtensions are the cross-reference/bibliography files the engine rewrites
// between passes; their combined content defines the convergence fingerprint.
var auxExtensions = map[string]bool{
	".aux": true,
	".toc": true,
	".lof": true,
	".lot": true,
	".out": true,
	".bbl": true,
	".idx": true,
}

// Handle is the exclusive reference to one job's workspace directory.
type Handle struct {
	jobID string
	dir   string

	mu       sync.Mutex
	released bool
}

// Dir returns the workspace directory path.
func (h *Handle) Dir() string { return h.dir }

// JobID returns the owning job's identifier.
func (h *Handle) JobID() string { return h.jobID }

// Manager creates and destroys job workspaces under a single base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a workspace manager rooted at baseDir (os.TempDir when empty).
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the directory all workspaces are created under.
func (m *Manager) BaseDir() string { return m.baseDir }

// Acquire creates a fresh, empty, exclusively owned directory for jobID.
// A failure here means disk or inode allocation failed.
func (m *Manager) Acquire(jobID string) (*Handle, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace base: %w", err)
	}
	dir := filepath.Join(m.baseDir, DirPrefix+jobID)
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	slog.Debug("Acquired workspace", logfields.JobID(jobID), logfields.Path(dir))
	return &Handle{jobID: jobID, dir: dir}, nil
}

// Release recursively removes the workspace. It is idempotent: callers defer
// it unconditionally and may also call it on an early exit path.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	if err := os.RemoveAll(h.dir); err != nil {
		return fmt.Errorf("release workspace: %w", err)
	}
	h.released = true
	slog.Debug("Released workspace", logfields.JobID(h.jobID), logfields.Path(h.dir))
	return nil
}

// WriteSource writes the submitted document under the fixed source filename.
func (h *Handle) WriteSource(source []byte) error {
	path := filepath.Join(h.dir, engine.SourceFileName)
	if err := os.WriteFile(path, source, 0o640); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// ArtifactReady reports whether the output artifact exists and is non-empty.
func (h *Handle) ArtifactReady() bool {
	info, err := os.Stat(filepath.Join(h.dir, ArtifactFileName))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// ReadArtifact reads the output artifact into memory. Callers read before
// Release so the Result outlives the workspace.
func (h *Handle) ReadArtifact() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, ArtifactFileName))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("artifact %s is empty", ArtifactFileName)
	}
	return data, nil
}

// AuxFingerprint hashes the auxiliary files the engine rewrites between
// passes. Equal fingerprints across two passes mean the cross-reference
// state has stabilized.
func (h *Handle) AuxFingerprint() (string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return "", fmt.Errorf("read workspace: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if auxExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	hash := sha256.New()
	for _, name := range names {
		f, err := os.Open(filepath.Join(h.dir, name))
		if err != nil {
			return "", fmt.Errorf("open aux file %s: %w", name, err)
		}
		_, _ = io.WriteString(hash, name)
		_, _ = io.WriteString(hash, "\x00")
		if _, err := io.Copy(hash, f); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("hash aux file %s: %w", name, err)
		}
		_ = f.Close()
		_, _ = io.WriteString(hash, "\x00")
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
