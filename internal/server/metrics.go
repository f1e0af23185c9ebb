// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	// outcomeOK, outcomeError, and outcomeEmpty are the "outcome" label values
	// recorded for completed queries.
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeEmpty = "empty"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queriesTotal counts completed /api/query requests, partitioned by
	// outcome: "ok", "empty" (no surviving candidates), or "error".
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each /api/query
	// request, retrieval and optional generation included.
	queryDurationSeconds prometheus.Histogram

	// retrievalConfidence records the aggregate confidence of each successful
	// query, so dashboards can watch answer quality drift.
	retrievalConfidence prometheus.Histogram

	// contextTruncationsTotal counts queries whose assembled context was cut
	// to fit the size budget.
	contextTruncationsTotal prometheus.Counter

	// chunksIngestedTotal counts chunks indexed via POST /api/ingest.
	chunksIngestedTotal prometheus.Counter

	// indexEntries is the current number of indexed chunks, refreshed after
	// every ingest and clear.
	indexEntries prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdoc",
			Name:      "queries_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "askdoc",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of /api/query requests, generation included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		retrievalConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "askdoc",
			Name:      "retrieval_confidence",
			Help:      "Aggregate retrieval confidence of successful queries.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		contextTruncationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "askdoc",
			Name:      "context_truncations_total",
			Help:      "Number of queries whose assembled context was truncated to fit the budget.",
		}),

		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "askdoc",
			Name:      "chunks_ingested_total",
			Help:      "Total number of chunks indexed via the ingest endpoint.",
		}),

		indexEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "askdoc",
			Name:      "index_entries",
			Help:      "Current number of chunks in the vector index.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdoc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdoc",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeQuery records the metrics for one completed query request.
func (m *serverMetrics) observeQuery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDurationSeconds.Observe(seconds)
}

// observeRetrieval records the quality metrics of a successful retrieval.
func (m *serverMetrics) observeRetrieval(confidence float64, truncated bool) {
	if m == nil {
		return
	}
	m.retrievalConfidence.Observe(confidence)
	if truncated {
		m.contextTruncationsTotal.Inc()
	}
}

// observeIngest records the metrics for one completed ingest request.
func (m *serverMetrics) observeIngest(chunks int) {
	if m == nil {
		return
	}
	m.chunksIngestedTotal.Add(float64(chunks))
}

// setIndexEntries refreshes the index size gauge.
func (m *serverMetrics) setIndexEntries(n int) {
	if m == nil {
		return
	}
	m.indexEntries.Set(float64(n))
}
