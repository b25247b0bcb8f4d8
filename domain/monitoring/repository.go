package monitoring

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/mathutil"
)

// Repository handles database queries for monitoring data
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new monitoring repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("monitoring"))}
}

// IndexTotals aggregates the search index: document count, distinct
// repositories, and how many documents carry a vector.
func (r *Repository) IndexTotals(ctx context.Context) (*IndexTotals, error) {
	totals := &IndexTotals{}
	err := r.db.NewRaw(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT repo_id),
			COUNT(*) FILTER (WHERE embedding IS NOT NULL)
		FROM idx.search_documents`,
	).Scan(ctx, &totals.Documents, &totals.Repositories, &totals.WithEmbeddings)
	if err != nil {
		r.log.Error("failed to read index totals", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return totals, nil
}

// LanguageCounts returns the most common document languages, largest
// first.
func (r *Repository) LanguageCounts(ctx context.Context, limit int) ([]LanguageCount, error) {
	limit = mathutil.ClampLimit(limit, 10, 50)

	counts := []LanguageCount{}
	err := r.db.NewRaw(`
		SELECT lang, COUNT(*) AS count
		FROM idx.search_documents
		WHERE lang <> ''
		GROUP BY lang
		ORDER BY count DESC
		LIMIT ?`, limit,
	).Scan(ctx, &counts)
	if err != nil {
		r.log.Error("failed to read language counts", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return counts, nil
}
