package indexer

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/embeddings"
	"github.com/repolens/repolens/pkg/parsers"
)

// Module provides the per-file pipeline and the parser registry it shares
// with the orchestrator.
var Module = fx.Module("indexer",
	fx.Provide(
		parsers.NewRegistry,
		provideIndexer,
		// The orchestrator consumes the pipeline through its own interface.
		func(ix *Indexer) indexjobs.FileIndexer { return ix },
	),
)

func provideIndexer(repo *indexjobs.Repository, svc *embeddings.Service, writer *search.Writer, reg *parsers.Registry, cfg *config.Config, log *slog.Logger) *Indexer {
	return NewIndexer(repo, svc, writer, reg, cfg.Indexing, log)
}
