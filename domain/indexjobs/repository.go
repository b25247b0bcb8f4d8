package indexjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/mathutil"
)

// Repository persists jobs, file states, dead letters and snapshots.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("indexjobs.repo")),
	}
}

// TransitionPatch carries row updates applied atomically with a status
// compare-and-set.
type TransitionPatch struct {
	// MarkStarted stamps started_at unless an earlier run already did.
	MarkStarted bool
	// MarkCompleted stamps completed_at and derives duration_seconds.
	MarkCompleted bool
	SuccessRate   *float64
	ErrorMessage  *string
}

// Progress is the recomputed counter set after a progress update.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// JobStats counts jobs by status for the admin surface.
type JobStats struct {
	Pending               int64 `json:"pending"`
	Running               int64 `json:"running"`
	Paused                int64 `json:"paused"`
	Completed             int64 `json:"completed"`
	Failed                int64 `json:"failed"`
	Cancelled             int64 `json:"cancelled"`
	UnresolvedDeadLetters int64 `json:"unresolvedDeadLetters"`
}

func (r *Repository) CreateJob(ctx context.Context, job *Job) error {
	_, err := r.db.NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to create job", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := &Job{}
	err := r.db.NewSelect().
		Model(job).
		Where("id = ?", id).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, apperror.NewNotFound("job", id.String())
	}
	if err != nil {
		r.log.Error("failed to get job", slog.String("job_id", id.String()), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return job, nil
}

// ListRecentJobs returns jobs newest first. The limit is clamped to 20 when
// unset and 100 at most. Processing orders are omitted; they can hold
// hundreds of thousands of paths.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	limit = mathutil.ClampLimit(limit, 20, 100)
	jobs := []*Job{}
	err := r.db.NewSelect().
		Model(&jobs).
		ExcludeColumn("processing_order").
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return jobs, nil
}

// TransitionJob moves a job between statuses with a single compare-and-set
// statement. It returns false when the job is missing or no longer in the
// expected status; concurrent control requests resolve through this.
func (r *Repository) TransitionJob(ctx context.Context, id uuid.UUID, from, to string, patch TransitionPatch) (bool, error) {
	if !CanTransition(from, to) {
		return false, apperror.NewInvalidInput(fmt.Sprintf("illegal job transition %s -> %s", from, to))
	}

	q := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", to).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", from)
	if patch.MarkStarted {
		q = q.Set("started_at = COALESCE(started_at, now())")
	}
	if patch.MarkCompleted {
		q = q.Set("completed_at = now()").
			Set("duration_seconds = EXTRACT(EPOCH FROM (now() - started_at))")
	}
	if patch.SuccessRate != nil {
		q = q.Set("success_rate = ?", *patch.SuccessRate)
	}
	if patch.ErrorMessage != nil {
		q = q.Set("error_message = ?", truncateMessage(*patch.ErrorMessage))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		r.log.Error("failed to transition job",
			slog.String("job_id", id.String()),
			slog.String("from", from),
			slog.String("to", to),
			logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// SetProcessingOrder stores the discovered file order and total exactly
// once. A second writer loses silently and must reload the job to see the
// canonical order.
func (r *Repository) SetProcessingOrder(ctx context.Context, id uuid.UUID, order []string) error {
	if order == nil {
		order = []string{}
	}
	res, err := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("processing_order = ?", pgdialect.Array(order)).
		Set("total_files = ?", len(order)).
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("processing_order IS NULL").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to set processing order", slog.String("job_id", id.String()), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		r.log.Debug("processing order already set", slog.String("job_id", id.String()))
	}
	return nil
}

// SaveCheckpoint persists resume state after a chunk. The guard keeps the
// checkpoint index monotonic so a lagging duplicate run can never rewind a
// newer one.
func (r *Repository) SaveCheckpoint(ctx context.Context, id uuid.UUID, cp Checkpoint, lastFile string) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	res, err := r.db.NewRaw(`
		UPDATE idx.jobs
		SET checkpoint = ?::jsonb,
		    last_processed_file = ?,
		    updated_at = now()
		WHERE id = ?
		  AND (checkpoint IS NULL OR (checkpoint->>'index_in_processing_order')::int <= ?)`,
		string(payload), lastFile, id, cp.Index).Exec(ctx)
	if err != nil {
		r.log.Error("failed to save checkpoint", slog.String("job_id", id.String()), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperror.NewConflict(fmt.Sprintf("checkpoint index %d would regress", cp.Index))
	}
	return nil
}

// UpdateProgress recomputes the job's counters from its file states, so
// progress survives crashes and concurrent writers without drift.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	p := &Progress{}
	err := r.db.NewRaw(`
		UPDATE idx.jobs j
		SET processed_files = s.processed,
		    failed_files = s.failed,
		    skipped_files = s.skipped,
		    progress_fraction = CASE WHEN j.total_files > 0
		        THEN LEAST(1.0, (s.processed + s.failed + s.skipped)::float8 / j.total_files)
		        ELSE 1.0 END,
		    updated_at = now()
		FROM (
		    SELECT COUNT(*) FILTER (WHERE status = 'COMPLETED') AS processed,
		           COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
		           COUNT(*) FILTER (WHERE status = 'SKIPPED') AS skipped
		    FROM idx.file_states
		    WHERE job_id = ?
		) s
		WHERE j.id = ?
		RETURNING j.total_files, s.processed, s.failed, s.skipped`,
		id, id).Scan(ctx, &p.Total, &p.Processed, &p.Failed, &p.Skipped)
	if err == sql.ErrNoRows {
		return nil, apperror.NewNotFound("job", id.String())
	}
	if err != nil {
		r.log.Error("failed to update progress", slog.String("job_id", id.String()), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return p, nil
}

// SeedFileStates creates a PENDING row for every path in the processing
// order. Idempotent, so resumed runs can reseed freely.
func (r *Repository) SeedFileStates(ctx context.Context, jobID uuid.UUID, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.db.NewRaw(`
		INSERT INTO idx.file_states (job_id, path)
		SELECT ?, unnest(?::text[])
		ON CONFLICT (job_id, path) DO NOTHING`,
		jobID, pgdialect.Array(paths)).Exec(ctx)
	if err != nil {
		r.log.Error("failed to seed file states", slog.String("job_id", jobID.String()), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// FilePatch is a partial file state update. Nil fields are left alone.
type FilePatch struct {
	Status        *string
	ContentHash   *string
	SizeBytes     *int64
	Entities      *int
	Embeddings    *int
	Duration      *float64
	SkipReason    *string
	Stage         *string
	Offset        *int
	MarkStarted   bool
	MarkCompleted bool
}

// UpsertFileState creates the row if discovery never seeded it and applies
// the patch. Rows already COMPLETED or SKIPPED are never reopened.
func (r *Repository) UpsertFileState(ctx context.Context, jobID uuid.UUID, path string, patch FilePatch) error {
	_, err := r.db.NewRaw(`
		INSERT INTO idx.file_states (job_id, path)
		VALUES (?, ?)
		ON CONFLICT (job_id, path) DO NOTHING`,
		jobID, path).Exec(ctx)
	if err != nil {
		r.log.Error("failed to ensure file state", slog.String("path", path), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	q := r.db.NewUpdate().
		Model((*FileState)(nil)).
		Set("updated_at = now()").
		Where("job_id = ?", jobID).
		Where("path = ?", path).
		Where("status NOT IN (?)", bun.In([]string{FileStatusCompleted, FileStatusSkipped}))
	if patch.Status != nil {
		q = q.Set("status = ?", *patch.Status)
	}
	if patch.ContentHash != nil {
		q = q.Set("content_hash = ?", *patch.ContentHash)
	}
	if patch.SizeBytes != nil {
		q = q.Set("size_bytes = ?", *patch.SizeBytes)
	}
	if patch.Entities != nil {
		q = q.Set("entities_extracted = ?", *patch.Entities)
	}
	if patch.Embeddings != nil {
		q = q.Set("embeddings_generated = ?", *patch.Embeddings)
	}
	if patch.Duration != nil {
		q = q.Set("processing_duration_seconds = ?", *patch.Duration)
	}
	if patch.SkipReason != nil {
		q = q.Set("skip_reason = ?", *patch.SkipReason)
	}
	if patch.Stage != nil {
		q = q.Set("last_stage = ?", *patch.Stage)
	}
	if patch.Offset != nil {
		q = q.Set("last_offset = ?", *patch.Offset)
	}
	if patch.MarkStarted {
		q = q.Set("started_at = COALESCE(started_at, now())")
	}
	if patch.MarkCompleted {
		q = q.Set("completed_at = now()")
	}

	if _, err := q.Exec(ctx); err != nil {
		r.log.Error("failed to update file state", slog.String("path", path), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// RecordFileError marks the file FAILED and returns its new retry count.
// Strategic SQL the query builder cannot express: the count continues from
// the file's most recent terminal outcome in any earlier run over the same
// repository, so a success resets the streak while repeated cross-run
// failures still reach the dead-letter threshold.
func (r *Repository) RecordFileError(ctx context.Context, jobID uuid.UUID, path, kind, message string) (int, error) {
	var retryCount int
	err := r.db.NewRaw(`
		UPDATE idx.file_states fs
		SET status = 'FAILED',
		    error_kind = ?,
		    error_message = ?,
		    retry_count = COALESCE((
		        SELECT CASE WHEN prev.status = 'FAILED' THEN prev.retry_count ELSE 0 END
		        FROM idx.file_states prev
		        JOIN idx.jobs pj ON pj.id = prev.job_id
		        WHERE prev.path = fs.path
		          AND prev.id <> fs.id
		          AND prev.status IN ('COMPLETED', 'FAILED')
		          AND pj.repository_root = (SELECT repository_root FROM idx.jobs WHERE id = fs.job_id)
		        ORDER BY prev.updated_at DESC
		        LIMIT 1
		    ), 0) + 1,
		    completed_at = now(),
		    updated_at = now()
		WHERE fs.job_id = ? AND fs.path = ?
		  AND fs.status IN ('PENDING', 'PROCESSING')
		RETURNING fs.retry_count`,
		kind, truncateMessage(message), jobID, path).Scan(ctx, &retryCount)
	if err == sql.ErrNoRows {
		// Already terminal; keep the first recorded outcome.
		r.log.Debug("file error not recorded, row already terminal", slog.String("path", path))
		return 0, nil
	}
	if err != nil {
		r.log.Error("failed to record file error", slog.String("path", path), logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return retryCount, nil
}

// ListFilesByStatus returns a job's file states ordered by path. An empty
// status returns every file.
func (r *Repository) ListFilesByStatus(ctx context.Context, jobID uuid.UUID, status string, limit int) ([]*FileState, error) {
	limit = mathutil.ClampLimit(limit, 100, 1000)
	files := []*FileState{}
	q := r.db.NewSelect().
		Model(&files).
		Where("job_id = ?", jobID).
		Order("path ASC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to list file states", slog.String("job_id", jobID.String()), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return files, nil
}

// AppendDeadLetter records a file that exhausted its retries, folding every
// prior recorded failure of that path into the retry history.
func (r *Repository) AppendDeadLetter(ctx context.Context, jobID uuid.UUID, path, stage, kind, message string) (*DeadLetter, error) {
	dl := &DeadLetter{}
	err := r.db.NewRaw(`
		INSERT INTO idx.dead_letters (job_id, path, stage, error_kind, error_message, retry_history)
		SELECT ?, ?, ?, ?, ?, COALESCE((
		    SELECT jsonb_agg(jsonb_build_object(
		        'retry_count', prev.retry_count,
		        'error_kind', prev.error_kind,
		        'error_message', prev.error_message,
		        'at', prev.updated_at) ORDER BY prev.updated_at)
		    FROM idx.file_states prev
		    JOIN idx.jobs pj ON pj.id = prev.job_id
		    WHERE prev.path = ?
		      AND prev.status = 'FAILED'
		      AND pj.repository_root = (SELECT repository_root FROM idx.jobs WHERE id = ?)
		), '[]'::jsonb)
		RETURNING *`,
		jobID, path, stage, kind, truncateMessage(message), path, jobID).Scan(ctx, dl)
	if err != nil {
		r.log.Error("failed to append dead letter", slog.String("path", path), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	deadLettersTotal.Inc()
	r.log.Warn("file dead-lettered",
		slog.String("job_id", jobID.String()),
		slog.String("path", path),
		slog.String("stage", stage),
		slog.String("error_kind", kind))
	return dl, nil
}

func (r *Repository) ListDeadLetters(ctx context.Context, resolved bool, limit int) ([]*DeadLetter, error) {
	limit = mathutil.ClampLimit(limit, 100, 1000)
	letters := []*DeadLetter{}
	err := r.db.NewSelect().
		Model(&letters).
		Where("resolved = ?", resolved).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list dead letters", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return letters, nil
}

// ResolveDeadLetter marks an entry handled. Returns false when it is
// missing or already resolved.
func (r *Repository) ResolveDeadLetter(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*DeadLetter)(nil)).
		Set("resolved = TRUE").
		Set("resolved_at = now()").
		Where("id = ?", id).
		Where("NOT resolved").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to resolve dead letter", slog.String("id", id.String()), logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// PruneDeadLetters deletes resolved entries older than the retention
// window. Unresolved entries are the triage backlog and are never touched.
func (r *Repository) PruneDeadLetters(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.NewDelete().
		Model((*DeadLetter)(nil)).
		Where("resolved").
		Where("resolved_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to prune dead letters", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// CompletedHashesForRepo returns each path's most recent completed content
// hash across all jobs over the repository. Incremental discovery filters
// the processing order by its key set.
func (r *Repository) CompletedHashesForRepo(ctx context.Context, repoRoot string) (map[string]string, error) {
	var rows []struct {
		Path        string `bun:"path"`
		ContentHash string `bun:"content_hash"`
	}
	err := r.db.NewRaw(`
		SELECT DISTINCT ON (fs.path) fs.path, fs.content_hash
		FROM idx.file_states fs
		JOIN idx.jobs j ON j.id = fs.job_id
		WHERE j.repository_root = ?
		  AND fs.status = 'COMPLETED'
		  AND fs.content_hash IS NOT NULL
		ORDER BY fs.path, fs.completed_at DESC NULLS LAST`,
		repoRoot).Scan(ctx, &rows)
	if err != nil && err != sql.ErrNoRows {
		r.log.Error("failed to load completed hashes", slog.String("repository_root", repoRoot), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	hashes := make(map[string]string, len(rows))
	for _, row := range rows {
		hashes[row.Path] = row.ContentHash
	}
	return hashes, nil
}

// LatestCompletedHash returns the path's most recent completed content hash
// for the repository, or "" when the file never completed. The per-file
// pipeline compares it against the current content for unchanged skips.
func (r *Repository) LatestCompletedHash(ctx context.Context, repoRoot, path string) (string, error) {
	var hash string
	err := r.db.NewRaw(`
		SELECT fs.content_hash
		FROM idx.file_states fs
		JOIN idx.jobs j ON j.id = fs.job_id
		WHERE j.repository_root = ?
		  AND fs.path = ?
		  AND fs.status = 'COMPLETED'
		  AND fs.content_hash IS NOT NULL
		ORDER BY fs.completed_at DESC NULLS LAST
		LIMIT 1`,
		repoRoot, path).Scan(ctx, &hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.log.Error("failed to load completed hash", slog.String("path", path), logger.Error(err))
		return "", apperror.ErrDatabase.WithInternal(err)
	}
	return hash, nil
}

// MarkNonTerminalFilesSkipped sweeps PENDING and PROCESSING rows to SKIPPED
// when a job ends, keeping the counter identity processed+failed+skipped ==
// total on terminal jobs.
func (r *Repository) MarkNonTerminalFilesSkipped(ctx context.Context, jobID uuid.UUID, reason string) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*FileState)(nil)).
		Set("status = ?", FileStatusSkipped).
		Set("skip_reason = ?", reason).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("job_id = ?", jobID).
		Where("status IN (?)", bun.In([]string{FileStatusPending, FileStatusProcessing})).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to sweep file states", slog.String("job_id", jobID.String()), logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// WriteSnapshot captures the finished job's aggregates as an immutable
// history row.
func (r *Repository) WriteSnapshot(ctx context.Context, jobID uuid.UUID, languages map[string]int) error {
	langJSON, err := json.Marshal(LanguageCounts(languages))
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	_, err = r.db.NewRaw(`
		INSERT INTO idx.repository_snapshots
		    (job_id, repository_root, total_files, processed_files, failed_files,
		     skipped_files, success_rate, duration_seconds,
		     avg_entities_per_file, avg_duration_per_file_seconds, language_distribution)
		SELECT j.id, j.repository_root, j.total_files, j.processed_files, j.failed_files,
		       j.skipped_files, j.success_rate, j.duration_seconds,
		       (SELECT AVG(entities_extracted) FROM idx.file_states
		        WHERE job_id = j.id AND status = 'COMPLETED'),
		       (SELECT AVG(processing_duration_seconds) FROM idx.file_states
		        WHERE job_id = j.id AND processing_duration_seconds IS NOT NULL),
		       ?::jsonb
		FROM idx.jobs j
		WHERE j.id = ?`,
		string(langJSON), jobID).Exec(ctx)
	if err != nil {
		r.log.Error("failed to write snapshot", slog.String("job_id", jobID.String()), logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots for a repository root, or
// across all repositories when root is empty.
func (r *Repository) ListSnapshots(ctx context.Context, repoRoot string, limit int) ([]*Snapshot, error) {
	limit = mathutil.ClampLimit(limit, 20, 100)
	snaps := []*Snapshot{}
	q := r.db.NewSelect().
		Model(&snaps).
		Order("created_at DESC").
		Limit(limit)
	if repoRoot != "" {
		q = q.Where("repository_root = ?", repoRoot)
	}
	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to list snapshots", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return snaps, nil
}

// JobStats tallies jobs by status plus the unresolved dead-letter backlog.
func (r *Repository) JobStats(ctx context.Context) (*JobStats, error) {
	s := &JobStats{}
	err := r.db.NewRaw(`
		SELECT
		    COUNT(*) FILTER (WHERE status = 'PENDING'),
		    COUNT(*) FILTER (WHERE status = 'RUNNING'),
		    COUNT(*) FILTER (WHERE status = 'PAUSED'),
		    COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		    COUNT(*) FILTER (WHERE status = 'FAILED'),
		    COUNT(*) FILTER (WHERE status = 'CANCELLED'),
		    (SELECT COUNT(*) FROM idx.dead_letters WHERE NOT resolved)
		FROM idx.jobs`).
		Scan(ctx, &s.Pending, &s.Running, &s.Paused, &s.Completed, &s.Failed, &s.Cancelled, &s.UnresolvedDeadLetters)
	if err != nil {
		r.log.Error("failed to compute job stats", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return s, nil
}

// RecoverStaleRunning returns RUNNING jobs nobody has touched within the
// threshold to PENDING and reports their IDs so the caller can requeue
// them. Their checkpoints are untouched; the next run resumes.
func (r *Repository) RecoverStaleRunning(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	_, err := r.db.NewRaw(`
		UPDATE idx.jobs
		SET status = 'PENDING', updated_at = now()
		WHERE status = 'RUNNING'
		  AND updated_at < now() - (? || ' seconds')::interval
		RETURNING id`,
		int(olderThan.Seconds())).Exec(ctx, &ids)
	if err != nil {
		r.log.Error("failed to recover stale jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return ids, nil
}

// UnqueuedPendingJobs finds PENDING jobs with no live queue row, which can
// happen when an enqueue fails after the job row committed or a recovery
// crashed between reset and requeue.
func (r *Repository) UnqueuedPendingJobs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewRaw(`
		SELECT j.id
		FROM idx.jobs j
		WHERE j.status = 'PENDING'
		  AND j.updated_at < now() - (? || ' seconds')::interval
		  AND NOT EXISTS (
		      SELECT 1 FROM idx.index_queue q
		      WHERE q.job_id = j.id AND q.status IN ('pending', 'processing')
		  )`,
		int(olderThan.Seconds())).Scan(ctx, &ids)
	if err != nil && err != sql.ErrNoRows {
		r.log.Error("failed to find unqueued pending jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return ids, nil
}

// truncateMessage caps stored error messages at 500 characters.
func truncateMessage(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
