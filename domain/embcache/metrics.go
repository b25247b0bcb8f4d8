package embcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hotHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embcache_hot_hits_total",
		Help: "Cache reads served from the Redis tier",
	})

	coldHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embcache_cold_hits_total",
		Help: "Cache reads served from Postgres after a hot miss",
	})

	hotErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embcache_hot_errors_total",
		Help: "Redis operations that failed or were short-circuited",
	})

	pruneDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_embcache_prune_deleted_total",
		Help: "Cold-tier entries removed by the maintenance prune",
	})

	hotBreakerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repolens_embcache_hot_breaker_state",
		Help: "Redis tier circuit breaker state (0=closed, 1=open, 2=half-open)",
	})
)
