package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/internal/config"
)

// Module provides scheduled maintenance: cold cache pruning, stale work
// recovery, and dead-letter retention.
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Cfg       *Config
	App       *config.Config
	Cache     *embcache.Repository
	Jobs      *indexjobs.Service
	Log       *slog.Logger
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	pruneTask := NewCachePruneTask(p.Cache, p.App.Cache.TTL(), p.App.Cache.PruneKeepMin, p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "cache_prune",
		p.Cfg.CachePruneSchedule, p.Cfg.CachePruneInterval, pruneTask.Run); err != nil {
		p.Log.Error("failed to register cache prune task",
			slog.String("error", err.Error()))
	}

	staleThreshold := time.Duration(p.App.Worker.StaleThresholdMinutes) * time.Minute
	sweepTask := NewStaleSweepTask(p.Jobs, staleThreshold, p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "stale_sweep",
		p.Cfg.StaleSweepSchedule, p.Cfg.StaleSweepInterval, sweepTask.Run); err != nil {
		p.Log.Error("failed to register stale sweep task",
			slog.String("error", err.Error()))
	}

	retentionTask := NewDeadLetterRetentionTask(p.Jobs, p.Cfg.DeadLetterRetention(), p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "dead_letter_retention",
		p.Cfg.DeadLetterRetentionSchedule, p.Cfg.DeadLetterRetentionInterval, retentionTask.Run); err != nil {
		p.Log.Error("failed to register dead-letter retention task",
			slog.String("error", err.Error()))
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// addScheduledTask registers a task under its cron schedule override when
// one is set, otherwise under its interval.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, schedule string, interval time.Duration, task TaskFunc) error {
	if schedule != "" {
		log.Debug("using cron schedule override",
			slog.String("task", name),
			slog.String("schedule", schedule))
		return s.AddCronTask(name, schedule, task)
	}
	return s.AddIntervalTask(name, interval, task)
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
