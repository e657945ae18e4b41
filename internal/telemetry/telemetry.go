// Package telemetry provides observability with Prometheus metrics and
// structured logging for the scheduler, gate, embedding client, and
// bulk indexer.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric vecbatch registers. It
// implements gate.Observer and scheduler.Observer directly so callers
// can wire it in without an adapter.
type Metrics struct {
	GateCapacity  *prometheus.GaugeVec
	GateInflight  *prometheus.GaugeVec
	GateThrottled *prometheus.CounterVec
	GateSucceeded *prometheus.CounterVec

	SchedulerProcessed *prometheus.CounterVec
	SchedulerFailed    *prometheus.CounterVec
	SchedulerRetried   *prometheus.CounterVec
	SchedulerInflight  *prometheus.GaugeVec
	SchedulerDuration  *prometheus.HistogramVec

	EmbedRequests *prometheus.CounterVec
	EmbedErrors   *prometheus.CounterVec
	EmbedLatency  *prometheus.HistogramVec

	SearchBulkRequests *prometheus.CounterVec
	SearchBulkErrors   *prometheus.CounterVec
	SearchBulkLatency  *prometheus.HistogramVec
	SearchBulkRowsOK   prometheus.Counter
}

// NewMetrics creates and registers every metric against registry (or
// the default registerer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		GateCapacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vecbatch_gate_capacity",
				Help: "Current admission-control capacity of an adaptive gate.",
			},
			[]string{"gate"},
		),
		GateInflight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vecbatch_gate_inflight",
				Help: "Number of calls currently admitted through an adaptive gate.",
			},
			[]string{"gate"},
		),
		GateThrottled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_gate_throttled_total",
				Help: "Total on_throttle signals observed by a gate.",
			},
			[]string{"gate"},
		),
		GateSucceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_gate_succeeded_total",
				Help: "Total on_success signals observed by a gate.",
			},
			[]string{"gate"},
		),

		SchedulerProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_scheduler_processed_total",
				Help: "Total work items that completed successfully.",
			},
			[]string{"component"},
		),
		SchedulerFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_scheduler_failed_total",
				Help: "Total work items that terminally failed.",
			},
			[]string{"component"},
		),
		SchedulerRetried: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_scheduler_retried_total",
				Help: "Total retry re-enqueues across all runs.",
			},
			[]string{"component"},
		),
		SchedulerInflight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vecbatch_scheduler_inflight",
				Help: "Work items currently queued or in-flight in a scheduler run.",
			},
			[]string{"component"},
		),
		SchedulerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecbatch_scheduler_run_duration_seconds",
				Help:    "Wall-clock duration of a full scheduler run.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"component"},
		),

		EmbedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_embed_requests_total",
				Help: "Total embedding service calls by model id.",
			},
			[]string{"model"},
		),
		EmbedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_embed_errors_total",
				Help: "Total embedding service errors by model id and error kind.",
			},
			[]string{"model", "kind"},
		),
		EmbedLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecbatch_embed_request_duration_seconds",
				Help:    "Embedding service call latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),

		SearchBulkRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_search_bulk_requests_total",
				Help: "Total bulk-index requests issued to the search cluster.",
			},
			[]string{"index"},
		),
		SearchBulkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecbatch_search_bulk_errors_total",
				Help: "Total non-ignorable bulk-index item errors by reason.",
			},
			[]string{"index", "reason"},
		),
		SearchBulkLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecbatch_search_bulk_duration_seconds",
				Help:    "Bulk-index request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index"},
		),
		SearchBulkRowsOK: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vecbatch_search_bulk_rows_indexed_total",
				Help: "Total rows successfully indexed (including ignorable version conflicts).",
			},
		),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// gate.Observer implementation.

func (m *Metrics) SetCapacity(name string, v float64) { m.GateCapacity.WithLabelValues(name).Set(v) }
func (m *Metrics) SetInflight(name string, v float64) { m.GateInflight.WithLabelValues(name).Set(v) }
func (m *Metrics) IncThrottled(name string)            { m.GateThrottled.WithLabelValues(name).Inc() }
func (m *Metrics) IncSucceeded(name string)            { m.GateSucceeded.WithLabelValues(name).Inc() }


// scheduler.Observer implementation.
func (m *Metrics) IncProcessed(component string, n int) {
	m.SchedulerProcessed.WithLabelValues(component).Add(float64(n))
}
func (m *Metrics) IncFailed(component string, n int) {
	m.SchedulerFailed.WithLabelValues(component).Add(float64(n))
}
func (m *Metrics) IncRetried(component string, n int) {
	m.SchedulerRetried.WithLabelValues(component).Add(float64(n))
}
func (m *Metrics) SetSchedulerInflight(component string, v float64) {
	m.SchedulerInflight.WithLabelValues(component).Set(v)
}
func (m *Metrics) ObserveDuration(component string, seconds float64) {
	m.SchedulerDuration.WithLabelValues(component).Observe(seconds)
}

// RecordEmbedCall observes one embedding service invocation.
func (m *Metrics) RecordEmbedCall(model string, duration time.Duration, errKind string) {
	m.EmbedRequests.WithLabelValues(model).Inc()
	m.EmbedLatency.WithLabelValues(model).Observe(duration.Seconds())
	if errKind != "" {
		m.EmbedErrors.WithLabelValues(model, errKind).Inc()
	}
}

// RecordBulkRequest observes one bulk-index POST.
func (m *Metrics) RecordBulkRequest(index string, duration time.Duration, rowsOK int) {
	m.SearchBulkRequests.WithLabelValues(index).Inc()
	m.SearchBulkLatency.WithLabelValues(index).Observe(duration.Seconds())
	m.SearchBulkRowsOK.Add(float64(rowsOK))
}

// RecordBulkError records one non-ignorable per-item bulk error.
func (m *Metrics) RecordBulkError(index, reason string) {
	m.SearchBulkErrors.WithLabelValues(index, reason).Inc()
}
