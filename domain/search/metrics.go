package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var documentsUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "repolens_search_documents_upserted_total",
	Help: "Documents written to the search index",
})
