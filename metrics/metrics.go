// Package metrics provides Prometheus metrics for the drug portal.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Drug index metrics:
//   - drug_shard_fetch_total: Counter with letter and result labels
//   - drug_shard_fetch_duration_seconds: Histogram of CDN round trips
//   - drug_shard_cache_total: Counter of secondary cache lookups by result
//   - drug_index_records: Gauge of records in the combined set
//   - drug_index_letters_loaded: Gauge of cached letter partitions
//   - drug_search_total: Counter of searches by scope
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	ShardFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drug_shard_fetch_total",
			Help: "Letter shard fetches from the CDN",
		},
		[]string{"letter", "result"},
	)

	ShardFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drug_shard_fetch_duration_seconds",
			Help:    "Letter shard download and decode latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)

	ShardCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drug_shard_cache_total",
			Help: "Secondary shard cache lookups",
		},
		[]string{"result"},
	)

	IndexRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drug_index_records",
			Help: "Distinct drug records in the combined set",
		},
	)

	IndexLettersLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drug_index_letters_loaded",
			Help: "Letter partitions currently cached",
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drug_search_total",
			Help: "Drug searches by scope",
		},
		[]string{"scope"},
	)

	ChatRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_request_total",
			Help: "Generative chat calls by result",
		},
		[]string{"result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Browser sessions currently held in memory",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(ShardFetchTotal)
	prometheus.MustRegister(ShardFetchDuration)
	prometheus.MustRegister(ShardCacheTotal)
	prometheus.MustRegister(IndexRecords)
	prometheus.MustRegister(IndexLettersLoaded)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(ChatRequestTotal)
	prometheus.MustRegister(ActiveSessions)
}
