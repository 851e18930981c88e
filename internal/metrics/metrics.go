package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "addon",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	IndexerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "indexer_requests_total",
		Help:      "Total requests to indexers by indexer id and result status.",
	}, []string{"indexer", "status"})

	IndexerRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "addon",
		Name:      "indexer_request_duration_seconds",
		Help:      "Indexer request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 7, 10, 20},
	}, []string{"indexer"})

	IndexerAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "addon",
		Name:      "indexer_available",
		Help:      "Whether an indexer is available (1) or blocked by circuit breaker (0).",
	}, []string{"indexer"})

	FanOutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "addon",
		Name:      "fanout_duration_seconds",
		Help:      "Duration of a full indexer fan-out in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 7, 10, 15},
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "cache_hits_total",
		Help:      "Total number of catalog cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "cache_misses_total",
		Help:      "Total number of catalog cache misses.",
	})

	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "resolve_total",
		Help:      "Total debrid resolutions by provider and outcome.",
	}, []string{"provider", "outcome"})

	ResolveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "addon",
		Name:      "resolve_duration_seconds",
		Help:      "Debrid resolution duration in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})

	StoreSweepEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addon",
		Name:      "store_sweep_evictions_total",
		Help:      "Total torrent info records evicted by the retention sweep.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		IndexerRequestsTotal,
		IndexerRequestDuration,
		IndexerAvailable,
		FanOutDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		ResolveTotal,
		ResolveDuration,
		StoreSweepEvictions,
	)
}
