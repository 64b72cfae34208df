// Package metrics defines the Prometheus collectors of the searcher and the
// indexer and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	resultBuckets  = []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000}
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// outcome: hit, miss, zero_result, error.
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CandidatesScanned  prometheus.Counter
	CorruptRowsTotal   prometheus.Counter
	CorrectionsTotal   *prometheus.CounterVec
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   prometheus.Counter
	TablesRefreshTotal *prometheus.CounterVec

	RowsWrittenTotal    prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	SegmentFlushesTotal *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
}

// New registers the service collectors on a fresh registry together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers only the service collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: latencyBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Searches by outcome.",
		}, []string{"outcome"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "Search latency by cache status.",
			Buckets: latencyBuckets[:len(latencyBuckets)-1],
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Total matching documents per search.",
			Buckets: resultBuckets,
		}),
		CandidatesScanned: f.NewCounter(prometheus.CounterOpts{
			Name: "search_candidates_scanned_total",
			Help: "Document groups examined by the relevance cursor.",
		}),
		CorruptRowsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "search_corrupt_rows_total",
			Help: "Posting rows skipped because their value could not be decoded.",
		}),
		CorrectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_corrections_total",
			Help: "Spelling fallbacks on zero-result searches, by whether a correction was found.",
		}, []string{"found"}),
		CacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Response cache hits by tier.",
		}, []string{"tier"}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Response cache misses across all tiers.",
		}),
		TablesRefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_refresh_total",
			Help: "Sample and authority table reloads by status.",
		}, []string{"status"}),

		RowsWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "posting_rows_written_total",
			Help: "Posting rows written to the store.",
		}),
		DocsIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Documents indexed.",
		}),
		SegmentFlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "segment_flushes_total",
			Help: "Memtable flushes by status.",
		}, []string{"status"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}

// ObserveBreaker publishes a circuit breaker state.
func (m *Metrics) ObserveBreaker(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
