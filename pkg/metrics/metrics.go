// Package metrics records what happened during one zhpublish run as
// Prometheus counters.
//
// zhpublish is a short-lived process, so instead of serving /metrics the
// registry is written to a node-exporter textfile after the run. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zhpublish"

// Recorder holds the counters of one process.
type Recorder struct {
	registry *prometheus.Registry

	strategyAttempts *prometheus.CounterVec
	loginPaths       *prometheus.CounterVec
	steps            *prometheus.CounterVec
	publishes        *prometheus.CounterVec
}

// NewRecorder creates a recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		strategyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_strategy_attempts_total",
			Help:      "Driver acquisition attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		loginPaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts by path taken and outcome.",
		}, []string{"path", "outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_steps_total",
			Help:      "Publish workflow steps by name and status.",
		}, []string{"step", "status"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish operations by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(r.strategyAttempts, r.loginPaths, r.steps, r.publishes)
	return r
}

// StrategyAttempt records one driver acquisition attempt.
// outcome is one of "success", "failure", "skipped".
func (r *Recorder) StrategyAttempt(strategy, outcome string) {
	if r == nil {
		return
	}
	r.strategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// Login records which authentication path was taken.
// path is "session" or "interactive".
func (r *Recorder) Login(path string, ok bool) {
	if r == nil {
		return
	}
	r.loginPaths.WithLabelValues(path, outcome(ok)).Inc()
}

// Step records the outcome of one publish step.
func (r *Recorder) Step(step, status string) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(step, status).Inc()
}

// Publish records the overall result of a publish operation.
func (r *Recorder) Publish(ok bool) {
	if r == nil {
		return
	}
	r.publishes.WithLabelValues(outcome(ok)).Inc()
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all counters in the Prometheus text format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
