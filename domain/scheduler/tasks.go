package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/pkg/logger"
)

// CachePruneTask trims the cold embedding cache tier: entries unused past
// their TTL go first, oldest first, but the table never shrinks below the
// configured floor.
type CachePruneTask struct {
	cache   *embcache.Repository
	maxAge  time.Duration
	keepMin int
	log     *slog.Logger
}

// NewCachePruneTask creates a new cache prune task
func NewCachePruneTask(cache *embcache.Repository, maxAge time.Duration, keepMin int, log *slog.Logger) *CachePruneTask {
	return &CachePruneTask{
		cache:   cache,
		maxAge:  maxAge,
		keepMin: keepMin,
		log:     log.With(logger.Scope("scheduler.cache_prune")),
	}
}

// Run executes the cache prune
func (t *CachePruneTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("pruning cold cache tier")

	deleted, err := t.cache.Prune(ctx, t.maxAge, t.keepMin)
	if err != nil {
		t.log.Error("failed to prune cache",
			slog.String("error", err.Error()))
		return err
	}

	if deleted > 0 {
		t.log.Info("pruned cold cache tier",
			slog.Int64("count", deleted),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no cache entries to prune",
			slog.Duration("duration", time.Since(start)))
	}
	return nil
}

// StaleSweepTask returns dead workers' work to the queue: stuck processing
// claims are released and abandoned RUNNING jobs are requeued so they
// resume from their checkpoints.
type StaleSweepTask struct {
	jobs      *indexjobs.Service
	threshold time.Duration
	log       *slog.Logger
}

// NewStaleSweepTask creates a new stale sweep task
func NewStaleSweepTask(jobs *indexjobs.Service, threshold time.Duration, log *slog.Logger) *StaleSweepTask {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &StaleSweepTask{
		jobs:      jobs,
		threshold: threshold,
		log:       log.With(logger.Scope("scheduler.stale_sweep")),
	}
}

// Run executes the stale sweep
func (t *StaleSweepTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("sweeping stale claims and jobs")

	released, requeued, err := t.jobs.RecoverStale(ctx, t.threshold)
	if err != nil {
		t.log.Error("failed to sweep stale work",
			slog.String("error", err.Error()))
		return err
	}

	if released > 0 || requeued > 0 {
		t.log.Info("recovered stale work",
			slog.Int("claims_released", released),
			slog.Int("jobs_requeued", requeued),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no stale work found",
			slog.Duration("duration", time.Since(start)))
	}
	return nil
}

// DeadLetterRetentionTask deletes resolved dead letters past the retention
// window. Unresolved entries stay until an operator resolves them.
type DeadLetterRetentionTask struct {
	jobs      *indexjobs.Service
	retention time.Duration
	log       *slog.Logger
}

// NewDeadLetterRetentionTask creates a new dead-letter retention task
func NewDeadLetterRetentionTask(jobs *indexjobs.Service, retention time.Duration, log *slog.Logger) *DeadLetterRetentionTask {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &DeadLetterRetentionTask{
		jobs:      jobs,
		retention: retention,
		log:       log.With(logger.Scope("scheduler.dead_letter_retention")),
	}
}

// Run executes the dead-letter retention sweep
func (t *DeadLetterRetentionTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("expiring resolved dead letters")

	deleted, err := t.jobs.PruneDeadLetters(ctx, t.retention)
	if err != nil {
		t.log.Error("failed to expire dead letters",
			slog.String("error", err.Error()))
		return err
	}

	if deleted > 0 {
		t.log.Info("expired resolved dead letters",
			slog.Int64("count", deleted),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no dead letters to expire",
			slog.Duration("duration", time.Since(start)))
	}
	return nil
}
