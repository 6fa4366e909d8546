// Package gitsource fetches LaTeX sources from git repositories so that jobs
// can reference a repository file instead of inlining the document.
package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	apperrors "github.com/texforge/texforge/internal/errors"
	"github.com/texforge/texforge/internal/logfields"
	"github.com/texforge/texforge/internal/retry"
)

// DefaultPath is the in-repo document path used when the request omits one.
const DefaultPath = "document.tex"

// Request identifies a document inside a git repository.
type Request struct {
	URL  string `json:"url"`
	Ref  string `json:"ref"`  // branch name, empty for the remote default
	Path string `json:"path"` // repo-relative .tex path
}

// Auth carries optional basic credentials (token auth uses it with any
// non-empty username).
type Auth struct {
	Username string
	Password string
}

// Fetcher clones repositories shallowly and extracts the requested document.
type Fetcher struct {
	policy retry.Policy
	auth   *Auth
}

// NewFetcher creates a fetcher applying the given retry policy to transient
// clone failures.
func NewFetcher(policy retry.Policy) *Fetcher {
	return &Fetcher{policy: policy}
}

// WithAuth attaches credentials used for every clone.
func (f *Fetcher) WithAuth(a Auth) *Fetcher { f.auth = &a; return f }

// Fetch clones the repository and returns the requested document's content.
// Transient network failures are retried per policy; authentication and
// not-found failures are permanent and returned immediately.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if req.URL == "" {
		return nil, apperrors.ValidationError("repository url must not be empty")
	}
	docPath := req.Path
	if docPath == "" {
		docPath = DefaultPath
	}
	if !filepath.IsLocal(docPath) {
		return nil, apperrors.ValidationError(fmt.Sprintf("document path %q escapes the repository", req.Path))
	}

	var lastErr error
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.policy.Delay(attempt)
			slog.Warn("Retrying source fetch",
				logfields.URL(req.URL), slog.Int("attempt", attempt), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		data, err := f.fetchOnce(ctx, req, docPath)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("source fetch failed after %d retries: %w", f.policy.MaxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, req Request, docPath string) ([]byte, error) {
	cloneDir, err := os.MkdirTemp("", "texforge-clone-")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "create clone directory")
	}
	defer func() { _ = os.RemoveAll(cloneDir) }()

	opts := &git.CloneOptions{URL: req.URL, Depth: 1}
	if req.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Ref)
		opts.SingleBranch = true
	}
	if f.auth != nil {
		opts.Auth = &http.BasicAuth{Username: f.auth.Username, Password: f.auth.Password}
	}

	repo, err := git.PlainCloneContext(ctx, cloneDir, false, opts)
	if err != nil {
		return nil, classifyCloneError(req.URL, err)
	}
	if head, herr := repo.Head(); herr == nil {
		slog.Debug("Repository cloned",
			logfields.URL(req.URL), slog.String("commit", head.Hash().String()[:8]))
	}

	data, err := os.ReadFile(filepath.Join(cloneDir, filepath.FromSlash(docPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ValidationError(fmt.Sprintf("document %q not found in repository", docPath))
		}
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "read document from clone")
	}
	return data, nil
}

// classifyCloneError maps go-git failures onto retryable/permanent service
// errors. Only network-ish failures are worth retrying.
func classifyCloneError(url string, err error) error {
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") || strings.Contains(l, "invalid username or password"):
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, fmt.Sprintf("authentication failed for %s", url))
	case strings.Contains(l, "repository not found") || strings.Contains(l, "repository does not exist"):
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, fmt.Sprintf("repository %s not found", url))
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "unknown scheme"):
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, fmt.Sprintf("unsupported protocol in %s", url))
	case strings.Contains(l, "reference not found"):
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, fmt.Sprintf("ref not found in %s", url))
	case strings.Contains(l, "timeout") || strings.Contains(l, "timed out") ||
		strings.Contains(l, "connection refused") || strings.Contains(l, "connection reset") ||
		strings.Contains(l, "temporary failure") || strings.Contains(l, "no such host") ||
		strings.Contains(l, "eof") || strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		return apperrors.WrapRetryable(err, apperrors.CategoryNetwork, apperrors.SeverityError, fmt.Sprintf("clone %s", url))
	default:
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, fmt.Sprintf("clone %s", url))
	}
}
