// Package httpserver exposes the render API and the admin endpoints. The
// render listener serves job submission and status; the admin listener serves
// metrics and health for scrape targets.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/texforge/texforge/internal/compile"
	"github.com/texforge/texforge/internal/config"
	"github.com/texforge/texforge/internal/gitsource"
	"github.com/texforge/texforge/internal/history"
	"github.com/texforge/texforge/internal/logfields"
)

// Builder runs one compilation job to a terminal result.
// Satisfied by *compile.Orchestrator.
type Builder interface {
	Build(ctx context.Context, source []byte, opts compile.Options) *compile.Result
}

// Fetcher resolves a git document reference to source bytes.
// Satisfied by *gitsource.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req gitsource.Request) ([]byte, error)
}

// Server manages the render and admin HTTP listeners.
type Server struct {
	cfg     *config.Config
	builder Builder
	store   history.Store  // nil when history is disabled
	fetcher Fetcher        // nil when git sources are disabled
	reg     *prom.Registry // nil disables /metrics
	version string

	// limits holds the build options applied to incoming jobs; swapped
	// atomically on config reload.
	limits atomic.Pointer[compile.Options]

	apiServer   *http.Server
	adminServer *http.Server
	startTime   time.Time
}

// New constructs a server for the given configuration and builder.
func New(cfg *config.Config, builder Builder) *Server {
	s := &Server{cfg: cfg, builder: builder, startTime: time.Now()}
	s.UpdateLimits(cfg.Build)
	return s
}

// WithHistory attaches the terminal-result store backing /jobs.
func (s *Server) WithHistory(store history.Store) *Server { s.store = store; return s }

// WithFetcher attaches the git source fetcher.
func (s *Server) WithFetcher(f Fetcher) *Server { s.fetcher = f; return s }

// WithRegistry attaches the Prometheus registry served on the admin listener.
func (s *Server) WithRegistry(reg *prom.Registry) *Server { s.reg = reg; return s }

// WithVersion sets the version string reported by /healthz.
func (s *Server) WithVersion(v string) *Server { s.version = v; return s }

// UpdateLimits applies reloaded build limits to subsequent jobs. In-flight
// jobs keep the limits they were admitted with.
func (s *Server) UpdateLimits(build config.BuildConfig) {
	opts := optionsFromBuild(build)
	s.limits.Store(&opts)
	slog.Debug("Build limits updated",
		logfields.Engine(string(opts.Engine)),
		slog.Int("max_passes", opts.MaxPasses),
		slog.Duration("per_pass_timeout", opts.PerPassTimeout),
		slog.Duration("overall_timeout", opts.OverallTimeout))
}

func (s *Server) currentLimits() compile.Options { return *s.limits.Load() }

// Start binds both listeners and begins serving. Binding is done up front so
// an occupied port fails startup instead of surfacing later in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}

	apiLn, err := lc.Listen(ctx, "tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind render listener %s: %w", s.cfg.Server.ListenAddr, err)
	}
	adminLn, err := lc.Listen(ctx, "tcp", s.cfg.Server.AdminAddr)
	if err != nil {
		_ = apiLn.Close()
		return fmt.Errorf("bind admin listener %s: %w", s.cfg.Server.AdminAddr, err)
	}

	s.apiServer = &http.Server{
		Handler:           requestLogging(panicRecovery(s.apiMux())),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.adminServer = &http.Server{
		Handler:           s.adminMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.serve("render", s.apiServer, apiLn)
	go s.serve("admin", s.adminServer, adminLn)

	slog.Info("HTTP servers started",
		slog.String("render_addr", apiLn.Addr().String()),
		slog.String("admin_addr", adminLn.Addr().String()))
	return nil
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server stopped", slog.String("listener", name), logfields.Error(err))
	}
}

// Shutdown drains both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{s.apiServer, s.adminServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /render", s.handleRender)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /jobs", s.handleJobList)
	mux.HandleFunc("GET /jobs/{id}", s.handleJobStatus)
	return mux
}

func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	return mux
}

func optionsFromBuild(build config.BuildConfig) compile.Options {
	return compile.Options{
		MaxPasses:      build.MaxPasses,
		PerPassTimeout: build.PerPassDuration(),
		OverallTimeout: build.OverallDuration(),
		Engine:         engineVariant(build.Engine),
	}
}
