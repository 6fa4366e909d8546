package gitsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	apperrors "github.com/texforge/texforge/internal/errors"
	"github.com/texforge/texforge/internal/retry"
)

// initRepo creates a local repository with the given files committed.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return dir
}

func TestFetchReadsDefaultDocument(t *testing.T) {
	repoDir := initRepo(t, map[string]string{
		"document.tex": "\\documentclass{article}\\begin{document}x\\end{document}",
		"README.md":    "not this one",
	})

	f := NewFetcher(retry.DefaultPolicy())
	data, err := f.Fetch(context.Background(), Request{URL: repoDir})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "\\documentclass{article}\\begin{document}x\\end{document}" {
		t.Errorf("wrong content: %q", data)
	}
}

func TestFetchReadsNestedPath(t *testing.T) {
	repoDir := initRepo(t, map[string]string{
		"papers/main.tex": "\\relax",
	})

	f := NewFetcher(retry.DefaultPolicy())
	data, err := f.Fetch(context.Background(), Request{URL: repoDir, Path: "papers/main.tex"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "\\relax" {
		t.Errorf("wrong content: %q", data)
	}
}

func TestFetchMissingDocument(t *testing.T) {
	repoDir := initRepo(t, map[string]string{"other.tex": "x"})

	f := NewFetcher(retry.DefaultPolicy())
	_, err := f.Fetch(context.Background(), Request{URL: repoDir})
	if err == nil {
		t.Fatal("expected error for missing document")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFetchRejectsBadRequests(t *testing.T) {
	f := NewFetcher(retry.DefaultPolicy())
	if _, err := f.Fetch(context.Background(), Request{}); err == nil {
		t.Error("empty url must be rejected")
	}
	if _, err := f.Fetch(context.Background(), Request{URL: "x", Path: "../../etc/passwd"}); err == nil {
		t.Error("escaping path must be rejected")
	}
}

func TestClassifyCloneError(t *testing.T) {
	cases := []struct {
		msg       string
		retryable bool
		category  apperrors.ErrorCategory
	}{
		{"authentication required", false, apperrors.CategoryGit},
		{"repository not found", false, apperrors.CategoryGit},
		{"unsupported protocol scheme", false, apperrors.CategoryGit},
		{"reference not found", false, apperrors.CategoryGit},
		{"dial tcp: i/o timeout", true, apperrors.CategoryNetwork},
		{"connection refused", true, apperrors.CategoryNetwork},
		{"unexpected EOF", true, apperrors.CategoryNetwork},
		{"429 too many requests", true, apperrors.CategoryNetwork},
		{"something else entirely", false, apperrors.CategoryGit},
	}
	for _, tc := range cases {
		got := classifyCloneError("https://example.com/r.git", errors.New(tc.msg))
		if apperrors.IsRetryable(got) != tc.retryable {
			t.Errorf("%q: retryable = %v, want %v", tc.msg, apperrors.IsRetryable(got), tc.retryable)
		}
		if apperrors.GetCategory(got) != tc.category {
			t.Errorf("%q: category = %s, want %s", tc.msg, apperrors.GetCategory(got), tc.category)
		}
	}
}
