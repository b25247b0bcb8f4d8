// Package search owns the write side of the hybrid index. The engine never
// queries idx.search_documents; retrieval is a downstream concern.
package search

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/pgutils"
)

// Writer upserts entity documents into idx.search_documents.
type Writer struct {
	db  bun.IDB
	log *slog.Logger
}

// NewWriter creates a new search index writer
func NewWriter(db bun.IDB, log *slog.Logger) *Writer {
	return &Writer{
		db:  db,
		log: log.With(logger.Scope("search.writer")),
	}
}

// UpsertDocuments writes a batch of documents keyed by doc_id, all or
// nothing. Re-running a batch is a no-op apart from indexed_at; documents
// without a vector keep any embedding a previous run stored.
func (w *Writer) UpsertDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := database.BeginSafeTx(ctx, w.db)
	if err != nil {
		return apperror.NewInternal("failed to begin document upsert", err)
	}
	defer tx.Rollback()

	for i := range docs {
		if err := upsertOne(ctx, tx, &docs[i]); err != nil {
			w.log.Error("document upsert failed",
				logger.Error(err),
				slog.String("doc_id", docs[i].DocID),
				slog.String("path", docs[i].Path))
			return apperror.NewInternal("failed to upsert document", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.NewInternal("failed to commit document upsert", err)
	}

	documentsUpsertedTotal.Add(float64(len(docs)))
	return nil
}

func upsertOne(ctx context.Context, tx *database.SafeTx, doc *Document) error {
	// The embedding travels as a vector literal; COALESCE(NULLIF(...))
	// keeps a previously stored vector when this write carries none.
	var vecLiteral any
	if len(doc.Vector) > 0 {
		vecLiteral = pgutils.FormatVector(doc.Vector)
	}

	_, err := tx.NewRaw(`
		INSERT INTO idx.search_documents
			(doc_id, repo_id, path, commit_sha, lang, kind, start_line, end_line,
			 tool, content, content_hash, embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?::vector, now())
		ON CONFLICT (doc_id) DO UPDATE SET
			repo_id = EXCLUDED.repo_id,
			path = EXCLUDED.path,
			commit_sha = EXCLUDED.commit_sha,
			lang = EXCLUDED.lang,
			kind = EXCLUDED.kind,
			start_line = EXCLUDED.start_line,
			end_line = EXCLUDED.end_line,
			tool = EXCLUDED.tool,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			embedding = COALESCE(EXCLUDED.embedding, idx.search_documents.embedding),
			indexed_at = now()`,
		doc.DocID, doc.RepoID, doc.Path, doc.CommitSHA, doc.Lang, doc.Kind,
		doc.StartLine, doc.EndLine, doc.Tool, doc.Content, doc.ContentHash,
		vecLiteral,
	).Exec(ctx)
	return err
}

// CountByRepo reports how many documents a repository currently has in the
// index. Used by the monitoring surface.
func (w *Writer) CountByRepo(ctx context.Context, repoID string) (int64, error) {
	var count int64
	err := w.db.NewRaw(`
		SELECT COUNT(*) FROM idx.search_documents WHERE repo_id = ?`,
		repoID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, apperror.NewInternal("failed to count documents", err)
	}
	return count, nil
}
