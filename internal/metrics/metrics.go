// Package metrics holds Prometheus instrumentation for catalog traffic and
// feed generation.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogRequests counts catalog calls by operation and result.
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvefeed_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"operation", "result"},
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvefeed_catalog_request_duration_seconds",
			Help:    "Duration of catalog API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CatalogCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solvefeed_catalog_cache_hits_total",
			Help: "Total number of catalog search cache hits",
		},
	)

	CatalogRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "solvefeed_catalog_rate_limited_total",
			Help: "Total number of HTTP 429 responses from the catalog",
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solvefeed_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvefeed_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	RecommendationItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvefeed_recommendation_items_total",
			Help: "Total number of recommended items produced, by category",
		},
		[]string{"category"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvefeed_generation_duration_seconds",
			Help:    "Duration of recommendation generation in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvefeed_sync_runs_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"status"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
