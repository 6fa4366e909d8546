package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/texforge/texforge/internal/admission"
	"github.com/texforge/texforge/internal/artifact"
	"github.com/texforge/texforge/internal/engine"
	"github.com/texforge/texforge/internal/events"
	"github.com/texforge/texforge/internal/logfields"
	"github.com/texforge/texforge/internal/metrics"
	"github.com/texforge/texforge/internal/texlog"
	"github.com/texforge/texforge/internal/workspace"
)

// logTailBytes bounds how much raw engine output a Failure carries.
const logTailBytes = 4096

// PassRunner executes one engine pass against a workspace directory.
// Satisfied by *engine.Driver; tests inject instrumented stubs.
type PassRunner interface {
	RunPass(ctx context.Context, dir string, pass int) (engine.PassResult, error)
}

// RunnerFactory builds a PassRunner for a job's options. Resolution failure
// here means the engine is unavailable.
type RunnerFactory func(opts Options) (PassRunner, error)

func defaultRunnerFactory(opts Options) (PassRunner, error) {
	return engine.NewDriver(opts.Engine, opts.PerPassTimeout)
}

// Orchestrator owns the lifecycle of one job from submission to terminal
// result: workspace acquisition, the pass loop, artifact retrieval, and
// guaranteed cleanup. It is safe for concurrent use; the admission semaphore
// is the only state shared between jobs.
type Orchestrator struct {
	ws        *workspace.Manager
	sem       *admission.Semaphore
	rec       metrics.Recorder
	pub       events.Publisher
	newRunner RunnerFactory
}

// NewOrchestrator wires an orchestrator with noop metrics and events.
func NewOrchestrator(ws *workspace.Manager, sem *admission.Semaphore) *Orchestrator {
	return &Orchestrator{
		ws:        ws,
		sem:       sem,
		rec:       metrics.NoopRecorder{},
		pub:       events.NoopPublisher{},
		newRunner: defaultRunnerFactory,
	}
}

// SetRecorder injects a metrics recorder (optional).
func (o *Orchestrator) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	o.rec = r
}

// SetPublisher injects a lifecycle event publisher (optional).
func (o *Orchestrator) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.NoopPublisher{}
	}
	o.pub = p
}

// SetRunnerFactory replaces engine resolution; used by tests and one-shot CLI
// runs against an explicit binary.
func (o *Orchestrator) SetRunnerFactory(f RunnerFactory) {
	if f != nil {
		o.newRunner = f
	}
}

// Build compiles source to a PDF. It is synchronous from the caller's view
// and cancellable through ctx. The returned Result is strictly Success xor
// Failure, and the job's workspace is already released when it returns.
func (o *Orchestrator) Build(ctx context.Context, source []byte, opts Options) *Result {
	opts = opts.withDefaults()
	jobID := uuid.NewString()
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, opts.OverallTimeout)
	defer cancel()

	o.pub.JobStarted(jobCtx, jobID, string(opts.Engine))
	slog.Info("Job accepted",
		logfields.JobID(jobID),
		logfields.Engine(string(opts.Engine)),
		"max_passes", opts.MaxPasses,
	)

	res := o.run(ctx, jobCtx, jobID, source, opts)
	res.JobID = jobID
	res.Duration = time.Since(start)

	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
	}
	o.rec.IncJobOutcome(outcome)
	o.rec.ObserveJobDuration(outcome, res.Duration)
	o.pub.JobFinished(context.WithoutCancel(ctx), jobID, outcome, res.Passes, res.Duration)

	if res.Failure != nil {
		slog.Warn("Job failed",
			logfields.JobID(jobID),
			logfields.Kind(outcome),
			logfields.Pass(res.Passes),
			logfields.DurationMS(float64(res.Duration.Milliseconds())),
			"message", res.Failure.Diagnostic.Message,
		)
	} else {
		slog.Info("Job succeeded",
			logfields.JobID(jobID),
			logfields.Pass(res.Passes),
			logfields.DurationMS(float64(res.Duration.Milliseconds())),
		)
	}
	return res
}

// run executes the job state machine. The workspace release is deferred
// immediately after acquisition so every exit path, including panics in the
// pass loop, releases it.
func (o *Orchestrator) run(parent, jobCtx context.Context, jobID string, source []byte, opts Options) *Result {
	waitStart := time.Now()
	if err := o.sem.Acquire(jobCtx); err != nil {
		// Admission wait exhausted the overall budget (or the caller left).
		return failResult(0, contextKind(parent), "admission wait exceeded job budget", nil)
	}
	o.rec.ObserveAdmissionWait(time.Since(waitStart))
	o.rec.SetActiveJobs(o.sem.InUse())
	defer func() {
		o.sem.Release()
		o.rec.SetActiveJobs(o.sem.InUse())
	}()

	handle, err := o.ws.Acquire(jobID)
	if err != nil {
		return failResult(0, ResourceExhausted, fmt.Sprintf("workspace allocation failed: %v", err), nil)
	}
	defer func() {
		if rerr := o.ws.Release(handle); rerr != nil {
			slog.Error("Workspace release failed", logfields.JobID(jobID), logfields.Error(rerr))
		}
	}()

	if err := handle.WriteSource(source); err != nil {
		return failResult(0, ResourceExhausted, fmt.Sprintf("source write failed: %v", err), nil)
	}

	runner, err := o.newRunner(opts)
	if err != nil {
		return failResult(0, EngineUnavailable, err.Error(), nil)
	}

	policy := Policy{MaxPasses: opts.MaxPasses}
	history := make([]PassRecord, 0, opts.MaxPasses)
	prevFingerprint := ""
	var lastOutput []byte

	for pass := 1; ; pass++ {
		passRes, err := runner.RunPass(jobCtx, handle.Dir(), pass)
		o.rec.ObservePassDuration(string(opts.Engine), passRes.Duration)
		if len(passRes.Output) > 0 {
			lastOutput = passRes.Output
		}
		if err != nil {
			return o.failPass(jobID, parent, pass, err, lastOutput)
		}
		o.rec.IncPassResult(passRes.ExitCode == 0)

		fingerprint, fpErr := handle.AuxFingerprint()
		auxChanged := true
		if fpErr != nil {
			slog.Warn("Aux fingerprint failed, assuming changed",
				logfields.JobID(jobID), logfields.Pass(pass), logfields.Error(fpErr))
		} else if pass > 1 {
			auxChanged = fingerprint != prevFingerprint
		}
		prevFingerprint = fingerprint

		artifactReady := handle.ArtifactReady()
		history = append(history, PassRecord{
			PassResult: passRes,
			AuxChanged: auxChanged,
			Fatal:      passRes.ExitCode != 0 && (texlog.HasErrorMarker(passRes.Output) || !artifactReady),
		})

		slog.Debug("Pass finished",
			logfields.JobID(jobID),
			logfields.Pass(pass),
			logfields.ExitCode(passRes.ExitCode),
			"aux_changed", auxChanged,
			"artifact_ready", artifactReady,
		)

		action := policy.NextAction(history, artifactReady)
		if action.Kind == ContinuePass {
			continue
		}
		if action.Kind == Abort {
			d := texlog.Interpret(lastOutput)
			return &Result{
				Passes:  len(history),
				Failure: &Failure{Kind: action.Reason, Diagnostic: d, Log: tail(lastOutput)},
			}
		}
		break
	}

	// Finalizing: the artifact must be in memory before the deferred release.
	data, err := handle.ReadArtifact()
	if err != nil {
		return failResult(len(history), ConvergenceFailed, fmt.Sprintf("artifact retrieval failed: %v", err), lastOutput)
	}

	pages, err := artifact.PageCount(data)
	if err != nil {
		// A parse failure downgrades metadata, not the result: the engine
		// exited clean and the bytes are what the caller asked for.
		slog.Warn("Artifact validation failed", logfields.JobID(jobID), logfields.Error(err))
		pages = 0
	}

	return &Result{Passes: len(history), Artifact: data, Pages: pages}
}

// failPass maps a pass-level error to the failure taxonomy.
func (o *Orchestrator) failPass(jobID string, parent context.Context, pass int, err error, lastOutput []byte) *Result {
	switch {
	case errors.Is(err, engine.ErrEngineUnavailable):
		return failResult(pass-1, EngineUnavailable, err.Error(), lastOutput)
	case errors.Is(err, engine.ErrPassTimeout):
		return failResult(pass-1, Timeout, fmt.Sprintf("pass %d: %v", pass, err), lastOutput)
	default:
		kind := contextKind(parent)
		slog.Debug("Pass interrupted", logfields.JobID(jobID), logfields.Pass(pass), logfields.Kind(string(kind)))
		return failResult(pass-1, kind, fmt.Sprintf("pass %d interrupted: %v", pass, err), lastOutput)
	}
}

// contextKind distinguishes caller cancellation from budget exhaustion.
func contextKind(parent context.Context) FailureKind {
	if parent.Err() == context.Canceled {
		return Cancelled
	}
	return Timeout
}

func failResult(passes int, kind FailureKind, message string, output []byte) *Result {
	d := texlog.Diagnostic{Kind: texlog.KindUnknown, Message: message}
	if len(output) > 0 && (kind == CompileError || kind == ConvergenceFailed) {
		d = texlog.Interpret(output)
	}
	return &Result{
		Passes:  passes,
		Failure: &Failure{Kind: kind, Diagnostic: d, Log: tail(output)},
	}
}

func tail(output []byte) string {
	if len(output) <= logTailBytes {
		return string(output)
	}
	return string(output[len(output)-logTailBytes:])
}
