package embeddings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repolens_embed_provider_requests_total",
		Help: "Embedding provider batch requests by outcome",
	}, []string{"outcome"})

	providerLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repolens_embed_provider_latency_seconds",
		Help:    "Embedding provider request latency",
		Buckets: prometheus.DefBuckets,
	})

	batchSizeObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repolens_embed_batch_size",
		Help:    "Number of texts per provider batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embed_cache_hits_total",
		Help: "Embedding lookups served from cache",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embed_cache_misses_total",
		Help: "Embedding lookups that required a provider call",
	})

	breakerStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repolens_embed_breaker_state",
		Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embed_truncated_inputs_total",
		Help: "Inputs truncated to the maximum content length",
	})
)
