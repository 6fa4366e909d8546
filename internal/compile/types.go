// Package compile implements the job orchestrator: the single entry point
// that takes untrusted LaTeX source, drives the multi-pass engine loop under
// admission control and time budgets, and produces a terminal Result.
package compile

import (
	"time"

	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/texlog"
)

// FailureKind is the machine-distinguishable classification of a failed job.
type FailureKind string

const (
	// ResourceExhausted means workspace or disk allocation failed.
	ResourceExhausted FailureKind = "resource_exhausted"
	// EngineUnavailable means the engine binary could not be located or started.
	EngineUnavailable FailureKind = "engine_unavailable"
	// CompileError means the engine reported a fatal document error.
	CompileError FailureKind = "compile_error"
	// ConvergenceFailed means passes were exhausted without a stable artifact.
	ConvergenceFailed FailureKind = "convergence_failed"
	// Timeout means the per-pass or overall budget was exceeded.
	Timeout FailureKind = "timeout"
	// Cancelled means the caller withdrew the request.
	Cancelled FailureKind = "cancelled"
)

// Options configures a single compilation job. Zero values fall back to
// defaults via withDefaults.
type Options struct {
	// MaxPasses bounds the fixed-point iteration (default 3, minimum 1).
	MaxPasses int
	// PerPassTimeout bounds one engine invocation.
	PerPassTimeout time.Duration
	// OverallTimeout bounds the whole job including admission wait.
	OverallTimeout time.Duration
	// Engine selects the toolchain binary.
	Engine engine.Variant
}

const (
	DefaultMaxPasses      = 3
	DefaultPerPassTimeout = 30 * time.Second
	DefaultOverallTimeout = 90 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxPasses < 1 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.PerPassTimeout <= 0 {
		o.PerPassTimeout = DefaultPerPassTimeout
	}
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = DefaultOverallTimeout
	}
	if o.Engine == "" {
		o.Engine = engine.PDFLaTeX
	}
	return o
}

// PassRecord is one engine invocation plus the derived convergence signals
// the policy needs.
type PassRecord struct {
	engine.PassResult

	// AuxChanged reports whether the auxiliary cross-reference state differs
	// from the previous pass. The first pass always counts as changed.
	AuxChanged bool

	// Fatal reports whether a non-zero exit is a real document failure rather
	// than a warning-only exit.
	Fatal bool
}

// Failure describes a terminal failure. Kind is always set; Diagnostic is
// present when engine output was available to interpret.
type Failure struct {
	Kind       FailureKind       `json:"kind"`
	Diagnostic texlog.Diagnostic `json:"diagnostic"`
	// Log holds the tail of the raw engine output for the failing pass.
	Log string `json:"log,omitempty"`
}

// Result is the terminal outcome of one job: strictly Success xor Failure.
// The workspace has already been released when a Result is returned.
type Result struct {
	JobID    string        `json:"job_id"`
	Passes   int           `json:"passes"`
	Duration time.Duration `json:"duration"`

	// Artifact is the compiled PDF; set only on success.
	Artifact []byte `json:"-"`
	// Pages is the artifact page count when validation succeeded (0 otherwise).
	Pages int `json:"pages,omitempty"`

	Failure *Failure `json:"failure,omitempty"`
}

// Succeeded reports whether the job reached the Succeeded terminal state.
func (r *Result) Succeeded() bool { return r.Failure == nil }
