package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval core Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashkit",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stashkit",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stashkit",
			Name:      "embedding_truncations_total",
			Help:      "Inputs truncated to the provider character limit",
		},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashkit",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"layer", "result"}, // layer: "lru"/"kv", result: "hit"/"miss"
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashkit",
			Name:      "pipeline_runs_total",
			Help:      "Embedding pipeline runs by outcome",
		},
		[]string{"outcome"}, // "completed" / "failed"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stashkit",
			Name:      "search_requests_total",
			Help:      "Search requests by serving method",
		},
		[]string{"method"}, // "vector" / "fts" / "combined"
	)

	SearchRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stashkit",
			Name:      "search_request_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var registered bool

// Register registers all collectors. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTruncationsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	registered = true
}
