package memwatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rssGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repolens_worker_memory_rss_bytes",
		Help: "Resident set size of the indexing process.",
	})

	usedPercentGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repolens_worker_memory_used_percent",
		Help: "Process RSS as a percentage of the configured memory budget.",
	})

	zoneGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repolens_worker_memory_zone",
		Help: "Memory pressure zone (0=normal, 1=pressure, 2=critical).",
	})

	concurrencyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repolens_worker_concurrency",
		Help: "Concurrency currently granted to a worker pool by the scaler.",
	}, []string{"worker"})
)
