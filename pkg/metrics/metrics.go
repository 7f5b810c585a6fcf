// Package metrics tracks session lifecycle metrics for one worker process and
// writes them in the Prometheus text format for a node-exporter textfile
// collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uitest"

// Registry holds the metrics of one worker. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg *prometheus.Registry

	SessionsOpened      *prometheus.CounterVec
	SessionOpenFailures *prometheus.CounterVec
	SessionOpenSeconds  *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge
	TeardownFailures    *prometheus.CounterVec
	TestsTotal          *prometheus.CounterVec
}

// New creates a registry labelled with the worker id.
func New(workerID string) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"worker": workerLabel(workerID)}, reg))

	r := &Registry{reg: reg}

	r.SessionsOpened = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_opened_total",
		Help:      "Browser sessions opened successfully",
	}, []string{"mode", "browser"})

	r.SessionOpenFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_open_failures_total",
		Help:      "Browser sessions that could not be opened",
	}, []string{"mode", "browser"})

	r.SessionOpenSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_open_seconds",
		Help:      "Time spent opening a browser session",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"mode"})

	r.ActiveSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Browser sessions currently open",
	})

	r.TeardownFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "teardown_failures_total",
		Help:      "Session teardowns that reported an error",
	}, []string{"mode"})

	r.TestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tests_total",
		Help:      "Tests finished by outcome",
	}, []string{"outcome"})

	return r
}

func workerLabel(workerID string) string {
	if workerID == "" {
		return "sequential"
	}
	return workerID
}

// ObserveOpen records a session open attempt.
func (r *Registry) ObserveOpen(mode, browser string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.SessionOpenSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err != nil {
		r.SessionOpenFailures.WithLabelValues(mode, browser).Inc()
		return
	}
	r.SessionsOpened.WithLabelValues(mode, browser).Inc()
	r.ActiveSessions.Inc()
}

// ObserveClose records a session teardown.
func (r *Registry) ObserveClose(mode string, err error) {
	if r == nil {
		return
	}
	r.ActiveSessions.Dec()
	if err != nil {
		r.TeardownFailures.WithLabelValues(mode).Inc()
	}
}

// ObserveTest records a finished test.
func (r *Registry) ObserveTest(outcome string) {
	if r == nil {
		return
	}
	r.TestsTotal.WithLabelValues(outcome).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes all metrics to path atomically.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
