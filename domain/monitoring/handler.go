package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/embeddings"
	"github.com/repolens/repolens/pkg/mathutil"
)

// Handler exposes the admin surface: consolidated stats, the dead-letter
// backlog, and the manual stale sweep.
type Handler struct {
	jobs      *indexjobs.Service
	repo      *Repository
	cache     *embcache.Cache
	cacheRepo *embcache.Repository
	embedder  *embeddings.Service
	cfg       *config.Config
}

// NewHandler creates a new monitoring handler
func NewHandler(jobs *indexjobs.Service, repo *Repository, cache *embcache.Cache, cacheRepo *embcache.Repository, embedder *embeddings.Service, cfg *config.Config) *Handler {
	return &Handler{
		jobs:      jobs,
		repo:      repo,
		cache:     cache,
		cacheRepo: cacheRepo,
		embedder:  embedder,
		cfg:       cfg,
	}
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	jobStats, queueStats, err := h.jobs.Stats(ctx)
	if err != nil {
		return err
	}
	coldStats, err := h.cacheRepo.GetStats(ctx)
	if err != nil {
		return err
	}
	totals, err := h.repo.IndexTotals(ctx)
	if err != nil {
		return err
	}
	languages, err := h.repo.LanguageCounts(ctx, 10)
	if err != nil {
		return err
	}

	hits, misses := h.embedder.CacheCounters()
	cacheDTO := CacheStatsDTO{
		EntriesCold:   coldStats.Entries,
		TotalHitsCold: coldStats.TotalHits,
		Hits:          hits,
		Misses:        misses,
		HotTier:       h.cache.BreakerState(),
	}
	if total := hits + misses; total > 0 {
		rate := float64(hits) / float64(total)
		cacheDTO.HitRate = &rate
	}

	return c.JSON(http.StatusOK, StatsResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Jobs:      jobStats,
		Queue:     queueStats,
		Cache:     cacheDTO,
		Embeddings: EmbeddingsStatusDTO{
			Enabled: h.embedder.Enabled(),
			Model:   h.embedder.Model(),
			Breaker: h.embedder.BreakerState().String(),
		},
		Index:     totals,
		Languages: languages,
	})
}

// ListDeadLetters handles GET /admin/dead-letters. Unresolved entries are
// the default view; pass resolved=true for the archive.
func (h *Handler) ListDeadLetters(c echo.Context) error {
	resolved := false
	if v := c.QueryParam("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperror.ErrInvalidInput.WithMessage("resolved must be a boolean")
		}
		resolved = b
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	limit = mathutil.ClampLimit(limit, 100, 1000)

	letters, err := h.jobs.ListDeadLetters(c.Request().Context(), resolved, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeadLetterListResponse{DeadLetters: letters})
}

// ResolveDeadLetter handles POST /admin/dead-letters/:id/resolve.
func (h *Handler) ResolveDeadLetter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.ErrInvalidInput.WithMessage("invalid dead letter ID")
	}
	if err := h.jobs.ResolveDeadLetter(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResolveResponse{OK: true})
}

// RecoverStale handles POST /admin/recover-stale: the on-demand version of
// the scheduled sweep, for operators who don't want to wait for the cron.
func (h *Handler) RecoverStale(c echo.Context) error {
	threshold := time.Duration(h.cfg.Worker.StaleThresholdMinutes) * time.Minute
	released, requeued, err := h.jobs.RecoverStale(c.Request().Context(), threshold)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RecoverStaleResponse{
		ClaimsReleased: released,
		JobsRequeued:   requeued,
	})
}
