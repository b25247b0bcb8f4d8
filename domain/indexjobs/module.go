package indexjobs

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/jobs"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/memwatch"
	"github.com/repolens/repolens/pkg/parsers"
)

// Module provides the index jobs fx.Module: the job store, the dispatch
// queue, the orchestrator and its worker, and the HTTP surface.
var Module = fx.Module("indexjobs",
	fx.Provide(
		NewRepository,
		NewIndexQueue,
		NewWorkerScaler,
		provideOrchestrator,
		NewRunWorker,
		NewService,
		NewHandler,
	),
	fx.Invoke(
		RegisterRoutes,
		RegisterWorkerLifecycle,
	),
)

// NewIndexQueue builds the durable dispatch queue over idx.index_queue.
func NewIndexQueue(db bun.IDB, cfg *config.Config, log *slog.Logger) *jobs.Queue {
	return jobs.NewQueue(db, jobs.QueueConfig{
		TableName:      "idx.index_queue",
		EntityIDColumn: "job_id",
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BatchSize:      cfg.Worker.Concurrency,
	}, log.With(logger.Scope("indexjobs.queue")))
}

// NewWorkerScaler bounds job concurrency by memory pressure.
func NewWorkerScaler(monitor memwatch.Monitor, cfg *config.Config) *memwatch.ConcurrencyScaler {
	return memwatch.NewConcurrencyScaler(monitor, "index-jobs", cfg.Memory.ScaleConcurrency, 1, cfg.Worker.Concurrency)
}

func provideOrchestrator(repo *Repository, indexer FileIndexer, reg *parsers.Registry, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return NewOrchestrator(repo, indexer, reg, cfg.Indexing, log)
}

// RegisterWorkerLifecycle ties the queue worker to application start/stop.
func RegisterWorkerLifecycle(lc fx.Lifecycle, worker *RunWorker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Use context.Background() - fx lifecycle context has a 15s timeout
			return worker.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}
