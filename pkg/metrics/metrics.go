// Package metrics defines the Prometheus metric collectors used across the
// pipeline, cache, index, and HTTP surface, and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	DocumentsProcessedTotal *prometheus.CounterVec
	PagesProcessedTotal     *prometheus.CounterVec
	OCRRetriesTotal         prometheus.Counter
	OCRLatency              prometheus.Histogram
	RasterizeLatency        prometheus.Histogram
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheEvictionsTotal     prometheus.Counter
	CacheCoalescedTotal     prometheus.Counter
	CacheStoreErrorsTotal   prometheus.Counter
	IndexDocuments          prometheus.Gauge
	IndexTerms              prometheus.Gauge
	IndexFlushesTotal       *prometheus.CounterVec
	SearchQueriesTotal      *prometheus.CounterVec
	SearchLatency           prometheus.Histogram
	SearchResultsCount      prometheus.Histogram
	FeedPublishedTotal      prometheus.Counter
	FeedConsumedTotal       prometheus.Counter
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	HTTPRequestsInFlight    prometheus.Gauge
	CircuitBreakerState     *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all collectors and registers them with reg. Tests pass a
// throwaway registry so repeated construction does not panic on duplicate
// registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_processed_total",
				Help: "Total documents processed by final outcome (ready, failed, canceled).",
			},
			[]string{"outcome"},
		),
		PagesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pages_processed_total",
				Help: "Total pages resolved by source (recognized, cached, failed).",
			},
			[]string{"source"},
		),
		OCRRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_retries_total",
				Help: "Total page recognition retry attempts.",
			},
		),
		OCRLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocr_page_duration_seconds",
				Help:    "Wall time per page recognition call.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		RasterizeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rasterize_duration_seconds",
				Help:    "Wall time per document rasterization.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_cache_hits_total",
				Help: "Total OCR cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_cache_misses_total",
				Help: "Total OCR cache misses.",
			},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_cache_evictions_total",
				Help: "Total entries evicted from the memory tier.",
			},
		),
		CacheCoalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_cache_coalesced_total",
				Help: "Total callers that shared an in-flight recognition instead of starting one.",
			},
		),
		CacheStoreErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ocr_cache_store_errors_total",
				Help: "Total durable cache backing failures (cache degrades, pipeline continues).",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Documents currently in the index.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms currently in the index.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index snapshot persist operations by status.",
			},
			[]string{"status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		FeedPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feed_documents_published_total",
				Help: "Total document-ready events published to the feed.",
			},
		),
		FeedConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feed_documents_consumed_total",
				Help: "Total document-ready events consumed from the feed.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.DocumentsProcessedTotal,
		m.PagesProcessedTotal,
		m.OCRRetriesTotal,
		m.OCRLatency,
		m.RasterizeLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheCoalescedTotal,
		m.CacheStoreErrorsTotal,
		m.IndexDocuments,
		m.IndexTerms,
		m.IndexFlushesTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.FeedPublishedTotal,
		m.FeedConsumedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
