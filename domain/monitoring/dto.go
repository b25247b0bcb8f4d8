package monitoring

import (
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/internal/jobs"
)

// StatsResponse is the consolidated admin snapshot: job counters, queue
// depth, cache effectiveness, provider breaker, and index totals.
type StatsResponse struct {
	Timestamp  string              `json:"timestamp"`
	Jobs       *indexjobs.JobStats `json:"jobs"`
	Queue      *jobs.Stats         `json:"queue"`
	Cache      CacheStatsDTO       `json:"cache"`
	Embeddings EmbeddingsStatusDTO `json:"embeddings"`
	Index      *IndexTotals        `json:"index"`
	Languages  []LanguageCount     `json:"languages,omitempty"`
}

// CacheStatsDTO describes both cache tiers. HitRate is the in-process
// lookup ratio since startup; nil before the first lookup.
type CacheStatsDTO struct {
	EntriesCold   int64    `json:"entriesCold"`
	TotalHitsCold int64    `json:"totalHitsCold"`
	Hits          int64    `json:"hits"`
	Misses        int64    `json:"misses"`
	HitRate       *float64 `json:"hitRate,omitempty"`
	HotTier       string   `json:"hotTier"`
}

// EmbeddingsStatusDTO describes the provider pipeline state.
type EmbeddingsStatusDTO struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
	Breaker string `json:"breaker"`
}

// DeadLetterListResponse wraps the dead-letter backlog.
type DeadLetterListResponse struct {
	DeadLetters []*indexjobs.DeadLetter `json:"deadLetters"`
}

// ResolveResponse acknowledges a dead-letter resolution.
type ResolveResponse struct {
	OK bool `json:"ok"`
}

// RecoverStaleResponse reports what a manual sweep reclaimed.
type RecoverStaleResponse struct {
	ClaimsReleased int `json:"claimsReleased"`
	JobsRequeued   int `json:"jobsRequeued"`
}
