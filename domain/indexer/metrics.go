package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entitiesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_indexer_entities_extracted_total",
		Help: "Entities extracted from parsed files",
	})

	filesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repolens_indexer_files_skipped_total",
		Help: "Files skipped before the pipeline, by reason",
	}, []string{"reason"})

	fileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repolens_indexer_file_duration_seconds",
		Help:    "End-to-end duration of completed file attempts",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
