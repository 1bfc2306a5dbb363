// Package metrics exposes Prometheus instrumentation for the monitoring
// engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. It satisfies the
// monitor package's ExecutionRecorder.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	alertsCreated     prometheus.Counter
	warningsCreated   prometheus.Counter
	schedulerRunning  prometheus.Gauge
}

// New creates and registers the engine collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_rule_executions_total",
			Help: "Rule executions by terminal status.",
		}, []string{"status"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regwatch_rule_execution_duration_seconds",
			Help:    "Duration of rule executions.",
			Buckets: prometheus.DefBuckets,
		}),
		alertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_alerts_created_total",
			Help: "Alerts created by rule executions.",
		}),
		warningsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_warnings_created_total",
			Help: "Preventive warnings created by rule executions.",
		}),
		schedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regwatch_scheduler_running",
			Help: "Whether the scheduler loop is running (1) or stopped (0).",
		}),
	}

	registry.MustRegister(
		m.executionsTotal,
		m.executionDuration,
		m.alertsCreated,
		m.warningsCreated,
		m.schedulerRunning,
	)
	return m
}

// RecordExecution counts one finished rule run.
func (m *Metrics) RecordExecution(status string, duration time.Duration) {
	m.executionsTotal.WithLabelValues(status).Inc()
	m.executionDuration.Observe(duration.Seconds())
}

// RecordAlertsCreated adds to the alert counter.
func (m *Metrics) RecordAlertsCreated(n int) {
	if n > 0 {
		m.alertsCreated.Add(float64(n))
	}
}

// RecordWarningsCreated adds to the warning counter.
func (m *Metrics) RecordWarningsCreated(n int) {
	if n > 0 {
		m.warningsCreated.Add(float64(n))
	}
}

// SetSchedulerRunning mirrors the scheduler state into a gauge.
func (m *Metrics) SetSchedulerRunning(running bool) {
	if running {
		m.schedulerRunning.Set(1)
	} else {
		m.schedulerRunning.Set(0)
	}
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
