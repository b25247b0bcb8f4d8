package embcache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/pgutils"
)

// Repository is the cold cache tier over idx.embedding_cache.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new embedding cache repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("embcache.repo")),
	}
}

// Lookup returns the cached vector for a key and records the access
// (last_accessed_at, hit_count) in the same statement. A missing key is
// (nil, false, nil), not an error.
func (r *Repository) Lookup(ctx context.Context, hash string) ([]float32, bool, error) {
	var (
		raw  string
		dims int
	)
	err := r.db.NewRaw(`
		UPDATE idx.embedding_cache
		SET last_accessed_at = now(), hit_count = hit_count + 1
		WHERE content_hash = ?
		RETURNING embedding::text, dimensions`,
		hash,
	).Scan(ctx, &raw, &dims)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		r.log.Error("cache lookup failed", logger.Error(err))
		return nil, false, apperror.NewInternal("failed to look up cache entry", err)
	}

	vec, err := pgutils.ParseVector(raw)
	if err != nil {
		// A row we cannot decode is useless; report a miss so the caller
		// regenerates and overwrites it.
		r.log.Error("cache entry has malformed vector", logger.Error(err), slog.String("hash", hash))
		return nil, false, nil
	}
	if dims > 0 && len(vec) != dims {
		r.log.Error("cache entry dimension mismatch",
			slog.String("hash", hash), slog.Int("stored", len(vec)), slog.Int("declared", dims))
		return nil, false, nil
	}
	return vec, true, nil
}

// GetOrCreateCacheEntry atomically inserts a cache entry or, when the key
// already exists, records the access. The second return value reports
// whether the row was created by this call.
func (r *Repository) GetOrCreateCacheEntry(ctx context.Context, hash string, vec []float32, modelID string, dimensions int) (*Entry, bool, error) {
	entry := &Entry{}
	var created bool

	// Strategic SQL that cannot be expressed with Bun's query builder:
	// upsert with access bump plus the xmax trick to tell insert from update.
	err := r.db.NewRaw(`
		INSERT INTO idx.embedding_cache (content_hash, embedding, model_id, dimensions)
		VALUES (?, ?::vector, ?, ?)
		ON CONFLICT (content_hash) DO UPDATE
		SET last_accessed_at = now(), hit_count = idx.embedding_cache.hit_count + 1
		RETURNING content_hash, model_id, dimensions, created_at, last_accessed_at, hit_count, (xmax = 0) AS created`,
		hash, pgutils.FormatVector(vec), modelID, dimensions,
	).Scan(ctx, &entry.ContentHash, &entry.ModelID, &entry.Dimensions,
		&entry.CreatedAt, &entry.LastAccessedAt, &entry.HitCount, &created)
	if err != nil {
		r.log.Error("cache upsert failed", logger.Error(err))
		return nil, false, apperror.NewInternal("failed to upsert cache entry", err)
	}
	return entry, created, nil
}

// Prune deletes entries not accessed within maxAge, oldest first, but never
// shrinks the table below keepMin rows. Returns the number of rows deleted.
func (r *Repository) Prune(ctx context.Context, maxAge time.Duration, keepMin int) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	res, err := r.db.NewRaw(`
		DELETE FROM idx.embedding_cache
		WHERE content_hash IN (
			SELECT content_hash
			FROM idx.embedding_cache
			WHERE last_accessed_at < ?
			ORDER BY last_accessed_at ASC
			LIMIT GREATEST(0, (SELECT COUNT(*) FROM idx.embedding_cache) - ?)
		)`,
		cutoff, keepMin,
	).Exec(ctx)
	if err != nil {
		r.log.Error("cache prune failed", logger.Error(err))
		return 0, apperror.NewInternal("failed to prune cache", err)
	}

	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		pruneDeletedTotal.Add(float64(deleted))
		r.log.Info("pruned cold cache tier",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
			slog.Int("keep_min", keepMin))
	}
	return deleted, nil
}

// GetStats returns cold-tier size and cumulative hits for monitoring.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.NewRaw(`
		SELECT COUNT(*), COALESCE(SUM(hit_count), 0)
		FROM idx.embedding_cache`,
	).Scan(ctx, &stats.Entries, &stats.TotalHits)
	if err != nil {
		return nil, apperror.NewInternal("failed to read cache stats", err)
	}
	return stats, nil
}
