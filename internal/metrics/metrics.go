// Package metrics records run statistics as Prometheus metrics.
//
// WATTS is a short-lived CLI, so metrics are not served; they are written in
// the text exposition format for the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
	"github.com/felixgeelhaar/watts/internal/errors"
)

// Metrics holds all Prometheus metrics for WATTS
type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	PhaseDuration *prometheus.HistogramVec

	// Errors counts failed runs by structured error code
	Errors *prometheus.CounterVec

	LastSuccess *prometheus.GaugeVec
}

// Simulation codes run from seconds to days.
var durationBuckets = []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watts_runs_total",
				Help: "Total number of plugin runs",
			},
			[]string{"plugin", "success"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watts_run_duration_seconds",
				Help:    "Duration of complete plugin runs in seconds",
				Buckets: durationBuckets,
			},
			[]string{"plugin"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watts_phase_duration_seconds",
				Help:    "Duration of run phases in seconds",
				Buckets: durationBuckets,
			},
			[]string{"plugin", "phase", "status"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watts_errors_total",
				Help: "Total number of failed runs by error code",
			},
			[]string{"plugin", "error_code"},
		),
		LastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "watts_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
			[]string{"plugin"},
		),
	}
}

// Observe records the duration of task once it reaches a terminal status.
// It matches the observer hook of plugin.InvokeOptions.
func (m *Metrics) Observe(state *checkpoint.State, task string) {
	t, ok := state.Task(task)
	if !ok || !t.Status.Terminal() {
		return
	}
	m.PhaseDuration.WithLabelValues(state.Plugin, task, string(t.Status)).Observe(t.Duration().Seconds())
}

// RecordRun records the outcome of a complete run.
func (m *Metrics) RecordRun(plugin string, d time.Duration, err error) {
	success := "true"
	if err != nil {
		success = "false"
		code := string(errors.CodeOf(err))
		if code == "" {
			code = "unknown"
		}
		m.Errors.WithLabelValues(plugin, code).Inc()
	} else {
		m.LastSuccess.WithLabelValues(plugin).SetToCurrentTime()
	}
	m.Runs.WithLabelValues(plugin, success).Inc()
	m.RunDuration.WithLabelValues(plugin).Observe(d.Seconds())
}
