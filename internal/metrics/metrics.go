// Package metrics exposes Prometheus metrics for the dispatch engine:
// dispatch and task counters, in-flight gauges, and task durations. A nil
// *Metrics is valid and records nothing, so wiring metrics is optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors behind a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	dispatchesTotal  *prometheus.CounterVec
	dispatchesActive prometheus.Gauge
	tasksTotal       *prometheus.CounterVec
	tasksInFlight    prometheus.Gauge
	taskDuration     prometheus.Histogram
}

// New creates and registers all engine collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.dispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgrid_dispatches_total",
		Help: "Number of finished dispatches by aggregate status.",
	}, []string{"status"})
	m.dispatchesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowgrid_dispatches_active",
		Help: "Number of dispatches currently executing.",
	})
	m.tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgrid_tasks_total",
		Help: "Number of terminal tasks by status.",
	}, []string{"status"})
	m.tasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowgrid_tasks_in_flight",
		Help: "Number of task attempts currently running on a backend.",
	})
	m.taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowgrid_task_duration_seconds",
		Help:    "Wall-clock duration of task attempts.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	m.registry.MustRegister(
		m.dispatchesTotal,
		m.dispatchesActive,
		m.tasksTotal,
		m.tasksInFlight,
		m.taskDuration,
	)
	return m
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DispatchStarted records the start of a run.
func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	m.dispatchesActive.Inc()
}

// DispatchFinished records a run reaching a terminal aggregate status.
func (m *Metrics) DispatchFinished(status string) {
	if m == nil {
		return
	}
	m.dispatchesActive.Dec()
	m.dispatchesTotal.WithLabelValues(status).Inc()
}

// AttemptStarted records a task attempt entering a backend.
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// AttemptFinished records a task attempt leaving a backend.
func (m *Metrics) AttemptFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.taskDuration.Observe(d.Seconds())
}

// TaskFinished records a task reaching a terminal status.
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
}
