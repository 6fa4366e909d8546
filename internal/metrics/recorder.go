package metrics

import "time"

// Recorder defines observability hooks for job and pass metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveJobDuration(outcome string, d time.Duration)
	ObservePassDuration(engine string, d time.Duration)
	IncJobOutcome(outcome string) // outcome: success|compile_error|convergence_failed|timeout|cancelled|...
	IncPassResult(clean bool)
	SetActiveJobs(n int)
	ObserveAdmissionWait(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveJobDuration(string, time.Duration)  {}
func (NoopRecorder) ObservePassDuration(string, time.Duration) {}
func (NoopRecorder) IncJobOutcome(string)                      {}
func (NoopRecorder) IncPassResult(bool)                        {}
func (NoopRecorder) SetActiveJobs(int)                         {}
func (NoopRecorder) ObserveAdmissionWait(time.Duration)        {}
