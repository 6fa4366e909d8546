// Package metrics defines the Recorder interface decoupling job/pass
// instrumentation from any concrete backend, plus Noop and Prometheus
// implementations.
package metrics
