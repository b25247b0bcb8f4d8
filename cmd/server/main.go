// Package main provides the entry point for the RepoLens indexing server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/health"
	"github.com/repolens/repolens/domain/indexer"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/monitoring"
	"github.com/repolens/repolens/domain/scheduler"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/domain/tracing"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/server"
	"github.com/repolens/repolens/pkg/embeddings"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/memwatch"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local") // Overload ensures local values take precedence

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		tracing.Module,

		// Memory monitor (adaptive batch sizing and worker scaling)
		memwatch.Module,

		// Embedding cache and provider pipeline
		embcache.Module,
		embeddings.Module,

		// Domain modules
		health.Module,
		search.Module,
		indexer.Module,
		indexjobs.Module,
		monitoring.Module,

		// Scheduler module (cron-based maintenance tasks)
		scheduler.Module,
	).Run()
}
