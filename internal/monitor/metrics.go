package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the sentinel.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    prometheus.Histogram
	ActiveExecutions     prometheus.Gauge
	LongExecutionsTotal  prometheus.Counter
	TimeoutsTotal        prometheus.Counter
	InterruptsTotal      *prometheus.CounterVec
	PublishFailuresTotal prometheus.Counter
	RequestsInFlight     prometheus.Gauge
	SourceSizeBytes      prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "executions_total",
				Help:      "Total number of observed executions by outcome.",
			},
			[]string{"status"},
		),

		ExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "execution_duration_seconds",
				Help:      "Duration of observed executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sentinel",
				Name:      "active_executions",
				Help:      "Number of executions currently in flight (0 or 1 for a single kernel).",
			},
		),

		LongExecutionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "long_executions_total",
				Help:      "Executions that crossed the warning threshold.",
			},
		),

		TimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "timeouts_total",
				Help:      "Executions that crossed the timeout threshold.",
			},
		),

		InterruptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "interrupts_total",
				Help:      "Auto-interrupt requests by result.",
			},
			[]string{"result"}, // delivered, suppressed, failed
		),

		PublishFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "publish_failures_total",
				Help:      "Metadata publications that failed and were dropped.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sentinel",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		SourceSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "source_size_bytes",
				Help:      "Size of executed source units in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ActiveExecutions,
		m.LongExecutionsTotal,
		m.TimeoutsTotal,
		m.InterruptsTotal,
		m.PublishFailuresTotal,
		m.RequestsInFlight,
		m.SourceSizeBytes,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(durationSec)
}

// RecordInterrupt records an auto-interrupt attempt by result.
func (m *Metrics) RecordInterrupt(result string) {
	m.InterruptsTotal.WithLabelValues(result).Inc()
}
