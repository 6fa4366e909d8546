package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	jobDuration   *prom.HistogramVec
	passDuration  *prom.HistogramVec
	jobOutcome    *prom.CounterVec
	passResults   *prom.CounterVec
	activeJobs    prom.Gauge
	admissionWait prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "texforge",
			Name:      "job_duration_seconds",
			Help:      "Total job duration by outcome",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"})
		pr.passDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "texforge",
			Name:      "pass_duration_seconds",
			Help:      "Duration of individual engine passes",
			Buckets:   prom.DefBuckets,
		}, []string{"engine"})
		pr.jobOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "texforge",
			Name:      "job_outcomes_total",
			Help:      "Job outcomes by final status",
		}, []string{"outcome"})
		pr.passResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "texforge",
			Name:      "pass_results_total",
			Help:      "Engine pass results by clean/dirty exit",
		}, []string{"result"})
		pr.activeJobs = prom.NewGauge(prom.GaugeOpts{
			Namespace: "texforge",
			Name:      "active_jobs",
			Help:      "Jobs currently holding an admission slot",
		})
		pr.admissionWait = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "texforge",
			Name:      "admission_wait_seconds",
			Help:      "Time jobs spent waiting for an admission slot",
			Buckets:   prom.DefBuckets,
		})
		reg.MustRegister(pr.jobDuration, pr.passDuration, pr.jobOutcome, pr.passResults, pr.activeJobs, pr.admissionWait)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveJobDuration(outcome string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePassDuration(engine string, d time.Duration) {
	if p == nil || p.passDuration == nil {
		return
	}
	p.passDuration.WithLabelValues(engine).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobOutcome(outcome string) {
	if p == nil || p.jobOutcome == nil {
		return
	}
	p.jobOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncPassResult(clean bool) {
	if p == nil || p.passResults == nil {
		return
	}
	res := "dirty"
	if clean {
		res = "clean"
	}
	p.passResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetActiveJobs(n int) {
	if p == nil || p.activeJobs == nil {
		return
	}
	p.activeJobs.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveAdmissionWait(d time.Duration) {
	if p == nil || p.admissionWait == nil {
		return
	}
	p.admissionWait.Observe(d.Seconds())
}
