package embcache

import (
	"time"

	"github.com/uptrace/bun"
)

// Entry is a cold-tier cache row in idx.embedding_cache. The embedding
// vector column is handled via raw SQL for pgvector round-trips and is not
// mapped here.
type Entry struct {
	bun.BaseModel `bun:"table:idx.embedding_cache,alias:ec"`

	// ContentHash is the cache key: SHA-256 over normalized content, model
	// id and key version.
	ContentHash    string    `bun:"content_hash,pk" json:"contentHash"`
	ModelID        string    `bun:"model_id,notnull" json:"modelId"`
	Dimensions     int       `bun:"dimensions,notnull" json:"dimensions"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	LastAccessedAt time.Time `bun:"last_accessed_at,notnull,default:now()" json:"lastAccessedAt"`
	HitCount       int64     `bun:"hit_count,notnull,default:0" json:"hitCount"`
}

// Stats summarizes the cold tier for the monitoring surface.
type Stats struct {
	Entries   int64 `json:"entries"`
	TotalHits int64 `json:"totalHits"`
}
