// Package indexer runs the per-file pipeline: read and hash the content,
// extract entities, embed them cache-first, and land the documents in the
// search index. Every outcome is recorded on the file's state row; errors
// never escape the file boundary unless the store itself is down.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/parsers"
	"github.com/repolens/repolens/pkg/tracing"
)

// extractorTool names the entity extractor on every document, so a future
// extractor can find and re-index documents produced by this one.
const extractorTool = "line-extract/v1"

// Store is the slice of the job store the per-file pipeline writes through.
// *indexjobs.Repository satisfies it.
type Store interface {
	UpsertFileState(ctx context.Context, jobID uuid.UUID, path string, patch indexjobs.FilePatch) error
	RecordFileError(ctx context.Context, jobID uuid.UUID, path, kind, message string) (int, error)
	AppendDeadLetter(ctx context.Context, jobID uuid.UUID, path, stage, kind, message string) (*indexjobs.DeadLetter, error)
	LatestCompletedHash(ctx context.Context, repoRoot, path string) (string, error)
}

// Embedder produces one vector per entity text, cache-first. Failed batches
// leave nil holes; the first batch error comes back alongside the partial
// result. *embeddings.Service satisfies it.
type Embedder interface {
	Enabled() bool
	EmbedWithCache(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentWriter lands entity documents in the search index.
// *search.Writer satisfies it.
type DocumentWriter interface {
	UpsertDocuments(ctx context.Context, docs []search.Document) error
}

// Indexer processes single files for the job orchestrator.
type Indexer struct {
	store    Store
	embedder Embedder
	writer   DocumentWriter
	reg      *parsers.Registry
	cfg      config.IndexingConfig
	log      *slog.Logger
}

func NewIndexer(store Store, embedder Embedder, writer DocumentWriter, reg *parsers.Registry, cfg config.IndexingConfig, log *slog.Logger) *Indexer {
	log = log.With(logger.Scope("indexer"))
	log.Info("entity extraction ready",
		slog.String("languages", strings.Join(reg.Languages(), ",")),
	)
	return &Indexer{
		store:    store,
		embedder: embedder,
		writer:   writer,
		reg:      reg,
		cfg:      cfg,
		log:      log,
	}
}

// IndexFile runs one file through ingest, embed and index. The returned
// error reports store failures only; ordinary file-level failures are
// recorded on the state row and come back as a FAILED outcome.
func (ix *Indexer) IndexFile(ctx context.Context, job *indexjobs.Job, path string) (indexjobs.FileOutcome, error) {
	ctx, span := tracing.Start(ctx, "indexer.file",
		attribute.String("repolens.job.id", job.ID.String()),
		attribute.String("repolens.file.path", path),
	)
	defer span.End()

	started := time.Now()
	out := indexjobs.FileOutcome{Path: path, Status: indexjobs.FileStatusFailed, Stage: indexjobs.StageIngest}

	processing := indexjobs.FileStatusProcessing
	stage := indexjobs.StageIngest
	offset := 0
	if err := ix.store.UpsertFileState(ctx, job.ID, path, indexjobs.FilePatch{
		Status:      &processing,
		Stage:       &stage,
		Offset:      &offset,
		MarkStarted: true,
	}); err != nil {
		return out, err
	}

	parser, ok := ix.reg.ForPath(path)
	if !ok {
		return ix.skip(ctx, job, path, indexjobs.SkipReasonNoParser, nil, nil, started)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ix.fail(ctx, job, path, indexjobs.StageIngest,
			apperror.ErrInternal.WithMessage("file read failed").WithInternal(err))
	}
	size := int64(len(content))
	hash := embcache.ContentHash(string(content))

	if !job.ForceReindex {
		prev, err := ix.store.LatestCompletedHash(ctx, job.RepositoryRoot, path)
		if err != nil {
			return out, err
		}
		if prev != "" && prev == hash {
			return ix.skip(ctx, job, path, indexjobs.SkipReasonContentUnchanged, &hash, &size, started)
		}
	}

	entities, perr := parser.Parse(path, content)
	if perr != nil {
		return ix.fail(ctx, job, path, indexjobs.StageIngest, apperror.ErrParse.WithInternal(perr))
	}
	if len(entities) == 0 && strings.TrimSpace(string(content)) != "" {
		// Nothing extractable; index the file as one unit so it is still
		// findable.
		entities = []parsers.Entity{parsers.WholeFile(path, content, parser.Language())}
	}
	out.Entities = len(entities)
	entitiesExtractedTotal.Add(float64(len(entities)))

	if len(entities) == 0 {
		// A blank file completes with nothing to embed or index.
		return ix.complete(ctx, job, path, hash, size, 0, 0, indexjobs.StageIngest, started)
	}

	if err := ix.advanceStage(ctx, job.ID, path, indexjobs.StageEmbed); err != nil {
		return out, err
	}
	out.Stage = indexjobs.StageEmbed

	texts := make([]string, len(entities))
	for i := range entities {
		texts[i] = entities[i].Text
	}
	vectors, embErr := ix.embedder.EmbedWithCache(ctx, texts)
	if embErr != nil && ctx.Err() != nil {
		// Shutdown or timeout, not a file problem; leave the row PROCESSING
		// for the next delivery instead of burning its retry budget.
		return out, ctx.Err()
	}
	embedded := 0
	for _, v := range vectors {
		if v != nil {
			embedded++
		}
	}
	out.Embeddings = embedded

	if ix.embedder.Enabled() && embErr != nil && embedded == 0 {
		return ix.fail(ctx, job, path, indexjobs.StageEmbed, embErr)
	}
	if embErr != nil {
		ix.log.Warn("partial embedding failure, affected entities index without vectors",
			slog.String("path", path),
			slog.Int("entities", len(entities)),
			slog.Int("embedded", embedded),
			logger.Error(embErr))
	}

	if err := ix.advanceStage(ctx, job.ID, path, indexjobs.StageIndex); err != nil {
		return out, err
	}
	out.Stage = indexjobs.StageIndex

	docs := make([]search.Document, 0, len(entities))
	for i, ent := range entities {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		docs = append(docs, buildDocument(job, path, ent, vec))
	}
	if err := ix.writer.UpsertDocuments(ctx, docs); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return ix.fail(ctx, job, path, indexjobs.StageIndex, err)
	}

	return ix.complete(ctx, job, path, hash, size, len(entities), embedded, indexjobs.StageIndex, started)
}

// skip closes the file as SKIPPED. The hash and size are recorded when the
// content was already read (unchanged-content skips), left untouched when it
// was not (no-parser skips).
func (ix *Indexer) skip(ctx context.Context, job *indexjobs.Job, path, reason string, hash *string, size *int64, started time.Time) (indexjobs.FileOutcome, error) {
	status := indexjobs.FileStatusSkipped
	duration := time.Since(started).Seconds()
	if err := ix.store.UpsertFileState(ctx, job.ID, path, indexjobs.FilePatch{
		Status:        &status,
		ContentHash:   hash,
		SizeBytes:     size,
		SkipReason:    &reason,
		Duration:      &duration,
		MarkCompleted: true,
	}); err != nil {
		return indexjobs.FileOutcome{Path: path, Status: indexjobs.FileStatusFailed, Stage: indexjobs.StageIngest}, err
	}
	filesSkippedTotal.WithLabelValues(reason).Inc()
	ix.log.Debug("file skipped", slog.String("path", path), slog.String("reason", reason))
	return indexjobs.FileOutcome{Path: path, Status: indexjobs.FileStatusSkipped, Stage: indexjobs.StageIngest}, nil
}

// fail records a file-level failure and, once the cross-run retry budget is
// spent, appends a dead letter. The stage cursor keeps whatever the row
// last reached, which is where a retry resumes its attention.
func (ix *Indexer) fail(ctx context.Context, job *indexjobs.Job, path, stage string, cause error) (indexjobs.FileOutcome, error) {
	out := indexjobs.FileOutcome{Path: path, Status: indexjobs.FileStatusFailed, Stage: stage}
	kind := apperror.CodeOf(cause)

	retries, err := ix.store.RecordFileError(ctx, job.ID, path, kind, cause.Error())
	if err != nil {
		return out, err
	}
	ix.log.Warn("file failed",
		slog.String("path", path),
		slog.String("stage", stage),
		slog.String("error_kind", kind),
		slog.Int("retry_count", retries),
		logger.Error(cause))

	if retries >= ix.cfg.MaxFileRetries {
		if _, dlErr := ix.store.AppendDeadLetter(ctx, job.ID, path, stage, kind, cause.Error()); dlErr != nil {
			// The failure itself is recorded; a dead-letter write problem
			// only costs triage metadata.
			ix.log.Error("failed to append dead letter", slog.String("path", path), logger.Error(dlErr))
		}
	}
	return out, nil
}

// complete closes the file as COMPLETED with its counters and duration.
func (ix *Indexer) complete(ctx context.Context, job *indexjobs.Job, path, hash string, size int64, entities, embedded int, stage string, started time.Time) (indexjobs.FileOutcome, error) {
	status := indexjobs.FileStatusCompleted
	duration := time.Since(started).Seconds()
	if err := ix.store.UpsertFileState(ctx, job.ID, path, indexjobs.FilePatch{
		Status:        &status,
		ContentHash:   &hash,
		SizeBytes:     &size,
		Entities:      &entities,
		Embeddings:    &embedded,
		Duration:      &duration,
		Stage:         &stage,
		Offset:        &entities,
		MarkCompleted: true,
	}); err != nil {
		return indexjobs.FileOutcome{Path: path, Status: indexjobs.FileStatusFailed, Stage: stage}, err
	}
	fileDurationSeconds.Observe(duration)
	ix.log.Debug("file indexed",
		slog.String("path", path),
		slog.Int("entities", entities),
		slog.Int("embeddings", embedded))
	return indexjobs.FileOutcome{
		Path:       path,
		Status:     indexjobs.FileStatusCompleted,
		Entities:   entities,
		Embeddings: embedded,
		Stage:      stage,
	}, nil
}

// advanceStage moves the row's stage cursor as the pipeline enters a stage.
func (ix *Indexer) advanceStage(ctx context.Context, jobID uuid.UUID, path, stage string) error {
	offset := 0
	return ix.store.UpsertFileState(ctx, jobID, path, indexjobs.FilePatch{Stage: &stage, Offset: &offset})
}

// entityID pins a document to its source entity. It deliberately carries no
// line numbers: edits that only shift an entity around the file keep the
// same identity, and the content-hash half of the doc id absorbs text
// changes.
func entityID(path string, ent parsers.Entity) string {
	return path + ":" + ent.Kind + ":" + ent.Name
}

func buildDocument(job *indexjobs.Job, path string, ent parsers.Entity, vec []float32) search.Document {
	return search.Document{
		DocID:       search.DocID(ent.Text, entityID(path, ent)),
		RepoID:      job.RepositoryRoot,
		Path:        path,
		Lang:        ent.Language,
		Kind:        ent.Kind,
		StartLine:   ent.StartLine,
		EndLine:     ent.EndLine,
		Tool:        extractorTool,
		Content:     ent.Text,
		ContentHash: embcache.ContentHash(ent.Text),
		Vector:      vec,
		IndexedAt:   time.Now().UTC(),
	}
}
