package indexjobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_jobs_created_total",
		Help: "Index jobs accepted for processing",
	})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repolens_jobs_finished_total",
		Help: "Index jobs reaching a terminal status",
	}, []string{"status"})

	filesIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repolens_files_indexed_total",
		Help: "File attempts by outcome",
	}, []string{"outcome"})

	chunksProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_chunks_processed_total",
		Help: "Chunks whose checkpoint was committed",
	})

	deadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repolens_dead_letters_total",
		Help: "Files moved to the dead-letter table",
	})
)
