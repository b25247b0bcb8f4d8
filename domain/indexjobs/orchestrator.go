package indexjobs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/parsers"
	"github.com/repolens/repolens/pkg/tracing"
)

// Store is the persistence surface one job run drives. *Repository
// satisfies it; orchestrator tests run against an in-memory implementation.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	TransitionJob(ctx context.Context, id uuid.UUID, from, to string, patch TransitionPatch) (bool, error)
	SetProcessingOrder(ctx context.Context, id uuid.UUID, order []string) error
	SeedFileStates(ctx context.Context, jobID uuid.UUID, paths []string) error
	SaveCheckpoint(ctx context.Context, id uuid.UUID, cp Checkpoint, lastFile string) error
	UpdateProgress(ctx context.Context, id uuid.UUID) (*Progress, error)
	MarkNonTerminalFilesSkipped(ctx context.Context, jobID uuid.UUID, reason string) (int64, error)
	WriteSnapshot(ctx context.Context, jobID uuid.UUID, languages map[string]int) error
	CompletedHashesForRepo(ctx context.Context, repoRoot string) (map[string]string, error)
}

// FileOutcome reports what one file attempt did to its state row.
type FileOutcome struct {
	Path       string
	Status     string
	Entities   int
	Embeddings int
	// Stage is the furthest pipeline stage the attempt reached.
	Stage string
}

// FileIndexer processes one file end to end and records the result on its
// state row. An error return means the attempt could not be recorded at all
// (store failures and the like); ordinary file-level failures come back as
// a FileOutcome with FileStatusFailed.
type FileIndexer interface {
	IndexFile(ctx context.Context, job *Job, path string) (FileOutcome, error)
}

// Orchestrator owns a claimed job from discovery to its next yield point:
// terminal status, pause, or cancellation.
type Orchestrator struct {
	store   Store
	indexer FileIndexer
	reg     *parsers.Registry
	cfg     config.IndexingConfig
	log     *slog.Logger
}

func NewOrchestrator(store Store, indexer FileIndexer, reg *parsers.Registry, cfg config.IndexingConfig, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		indexer: indexer,
		reg:     reg,
		cfg:     cfg,
		log:     log.With(logger.Scope("indexjobs.orchestrator")),
	}
}

// Run processes one claimed job. It is safe to call again for the same job:
// the run resumes after the last checkpoint and file states that already
// finished are never reopened. The returned error reports infrastructure
// failures only; job-level failures land on the job row itself.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := tracing.Start(ctx, "indexjobs.run",
		attribute.String("repolens.job.id", jobID.String()),
	)
	defer span.End()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	log := o.log.With(slog.String("job_id", jobID.String()))

	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		log.Debug("job already terminal", slog.String("status", job.Status))
		return nil
	case StatusPaused:
		log.Debug("job paused, waiting for resume")
		return nil
	case StatusPending:
		ok, err := o.store.TransitionJob(ctx, jobID, StatusPending, StatusRunning, TransitionPatch{MarkStarted: true})
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved the job between our read and the CAS.
			if job, err = o.store.GetJob(ctx, jobID); err != nil {
				return err
			}
			if job.Status != StatusRunning {
				return nil
			}
		}
	case StatusRunning:
		// A resumed or recovered run; continue from the checkpoint.
	}

	// The first run establishes the processing order; later runs reuse the
	// stored one so resumption stays deterministic even if the tree changed
	// underneath.
	if len(job.ProcessingOrder) == 0 && job.Checkpoint == nil {
		order, derr := o.discover(ctx, job, log)
		if derr != nil {
			return o.failJob(ctx, jobID, "discovery_failed: "+derr.Error(), log)
		}
		if err := o.store.SetProcessingOrder(ctx, jobID, order); err != nil {
			return err
		}
		// Reload: a concurrent claimant may have won the write-once order.
		if job, err = o.store.GetJob(ctx, jobID); err != nil {
			return err
		}
	}
	order := job.ProcessingOrder

	if err := o.store.SeedFileStates(ctx, jobID, order); err != nil {
		return err
	}

	start := resumeIndex(order, job.LastProcessedFile)
	if start > 0 {
		log.Info("resuming from checkpoint",
			slog.Int("resume_index", start),
			slog.Int("total_files", len(order)))
	}

	chunks := BuildChunks(o.statFiles(order[start:]), o.cfg.MaxFilesPerChunk, o.cfg.MaxBytesPerChunk)

	log.Info("job running",
		slog.String("type", job.Type),
		slog.Int("total_files", len(order)),
		slog.Int("remaining_files", len(order)-start),
		slog.Int("chunks", len(chunks)))

	done := start
	for _, chunk := range chunks {
		stages, chunkFailed := o.runChunk(ctx, job, chunk, log)
		done += len(chunk.Files)

		cp := Checkpoint{
			Timestamp:     time.Now().UTC(),
			Index:         done - 1,
			ChunkSize:     len(chunk.Files),
			ChunkFailed:   chunkFailed,
			StageCounters: stages,
		}
		last := chunk.Files[len(chunk.Files)-1].Path
		if err := o.store.SaveCheckpoint(ctx, jobID, cp, last); err != nil {
			return err
		}
		chunksProcessedTotal.Inc()

		prog, err := o.store.UpdateProgress(ctx, jobID)
		if err != nil {
			return err
		}

		attempted := prog.Processed + prog.Failed
		if attempted >= o.cfg.AbortMinSamples &&
			float64(prog.Failed)/float64(attempted) > o.cfg.AbortFailureRate {
			log.Warn("failure rate exceeded, aborting job",
				slog.Int("attempted", attempted),
				slog.Int("failed", prog.Failed))
			msg := ErrorFailureRateExceeded
			return o.finalize(ctx, job, StatusFailed, &msg, log)
		}

		// Pause and cancel requests are observed here, at chunk
		// boundaries, so the checkpoint covering this chunk is already
		// durable.
		cur, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case StatusPaused:
			log.Info("pause observed at chunk boundary", slog.Int("files_done", done))
			return nil
		case StatusCancelled:
			log.Info("cancellation observed at chunk boundary", slog.Int("files_done", done))
			if _, err := o.store.MarkNonTerminalFilesSkipped(ctx, jobID, SkipReasonTerminated); err != nil {
				return err
			}
			_, err = o.store.UpdateProgress(ctx, jobID)
			return err
		}
	}

	return o.finalize(ctx, job, StatusCompleted, nil, log)
}

// discover walks the repository and returns the processing order. For
// incremental jobs without force_reindex, paths already completed by an
// earlier run over the same root are left out entirely.
func (o *Orchestrator) discover(ctx context.Context, job *Job, log *slog.Logger) ([]string, error) {
	opts := DiscoverOptions{
		Root:             job.RepositoryRoot,
		IncludePatterns:  job.IncludePatterns,
		ExcludePatterns:  job.ExcludePatterns,
		MaxFileSizeBytes: o.cfg.MaxFileSizeBytes,
	}
	if job.Type == TypeIncremental && !job.ForceReindex {
		hashes, err := o.store.CompletedHashesForRepo(ctx, job.RepositoryRoot)
		if err != nil {
			return nil, err
		}
		skip := make(map[string]struct{}, len(hashes))
		for p := range hashes {
			skip[p] = struct{}{}
		}
		opts.SkipPaths = skip
	}

	files, err := DiscoverFiles(opts, log)
	if err != nil {
		return nil, err
	}
	order := make([]string, len(files))
	for i, f := range files {
		order[i] = f.Path
	}
	log.Info("discovery complete", slog.Int("files", len(order)))
	return order, nil
}

// statFiles re-reads sizes so resumed runs chunk against current bytes.
// Files that vanished since discovery get size zero here; the read failure
// surfaces when they are attempted.
func (o *Orchestrator) statFiles(paths []string) []FileInfo {
	files := make([]FileInfo, len(paths))
	for i, p := range paths {
		files[i] = FileInfo{Path: p}
		if info, err := os.Stat(p); err == nil {
			files[i].Size = info.Size()
		}
	}
	return files
}

// runChunk fans the chunk's files across at most MaxConcurrentChunks
// goroutines and waits for all of them. Chunks themselves never overlap, so
// every checkpoint covers an exact prefix of the processing order.
func (o *Orchestrator) runChunk(ctx context.Context, job *Job, chunk Chunk, log *slog.Logger) (map[string]int, bool) {
	ctx, span := tracing.Start(ctx, "indexjobs.chunk",
		attribute.String("repolens.job.id", job.ID.String()),
		attribute.Int("repolens.chunk.files", len(chunk.Files)),
		attribute.Int64("repolens.chunk.bytes", chunk.Bytes),
	)
	defer span.End()

	concurrency := o.cfg.MaxConcurrentChunks
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		stages = make(map[string]int)
		failed bool
	)
	for _, f := range chunk.Files {
		sem <- struct{}{}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := o.indexer.IndexFile(ctx, job, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = true
				log.Error("file attempt could not be recorded",
					slog.String("path", path),
					logger.Error(err))
				return
			}
			if outcome.Stage != "" {
				stages[outcome.Stage]++
			}
			switch outcome.Status {
			case FileStatusCompleted:
				filesIndexedTotal.WithLabelValues("completed").Inc()
			case FileStatusFailed:
				filesIndexedTotal.WithLabelValues("failed").Inc()
			case FileStatusSkipped:
				filesIndexedTotal.WithLabelValues("skipped").Inc()
			}
		}(f.Path)
	}
	wg.Wait()
	return stages, failed
}

// finalize sweeps unattempted files, settles the counters and success rate,
// commits the terminal transition and records the snapshot.
func (o *Orchestrator) finalize(ctx context.Context, job *Job, to string, errMsg *string, log *slog.Logger) error {
	jobID := job.ID
	if _, err := o.store.MarkNonTerminalFilesSkipped(ctx, jobID, SkipReasonTerminated); err != nil {
		return err
	}
	prog, err := o.store.UpdateProgress(ctx, jobID)
	if err != nil {
		return err
	}

	patch := TransitionPatch{MarkCompleted: true, ErrorMessage: errMsg}
	attempted := prog.Processed + prog.Failed
	// The success rate needs the same minimum sample count as the abort
	// rule; below it the rate is statistically meaningless and stays null.
	if attempted >= o.cfg.AbortMinSamples {
		rate := float64(prog.Processed) / float64(attempted)
		patch.SuccessRate = &rate
	}

	ok, err := o.store.TransitionJob(ctx, jobID, StatusRunning, to, patch)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to a cancel; leave the row as the winner set it.
		log.Warn("terminal transition rejected", slog.String("to", to))
		return nil
	}
	jobsFinishedTotal.WithLabelValues(to).Inc()

	if err := o.store.WriteSnapshot(ctx, jobID, o.languageDistribution(job.ProcessingOrder)); err != nil {
		// The terminal status is already committed; a snapshot failure
		// must not resurrect the job.
		log.Error("failed to write snapshot", logger.Error(err))
	}

	log.Info("job finalized",
		slog.String("status", to),
		slog.Int("processed", prog.Processed),
		slog.Int("failed", prog.Failed),
		slog.Int("skipped", prog.Skipped))
	return nil
}

// failJob records a job-level failure, such as a discovery error, on the
// job row. The nil return is deliberate: the failure is recorded, so the
// queue must not redeliver.
func (o *Orchestrator) failJob(ctx context.Context, jobID uuid.UUID, msg string, log *slog.Logger) error {
	log.Error("job failed", slog.String("error", msg))
	ok, err := o.store.TransitionJob(ctx, jobID, StatusRunning, StatusFailed, TransitionPatch{
		MarkCompleted: true,
		ErrorMessage:  &msg,
	})
	if err != nil {
		return err
	}
	if ok {
		jobsFinishedTotal.WithLabelValues(StatusFailed).Inc()
	}
	return nil
}

// languageDistribution buckets the processing order by parser language;
// files no parser claims count under "other".
func (o *Orchestrator) languageDistribution(order []string) map[string]int {
	dist := make(map[string]int)
	for _, path := range order {
		lang := "other"
		if p, ok := o.reg.ForPath(path); ok {
			lang = p.Language()
		}
		dist[lang]++
	}
	return dist
}

// resumeIndex locates where a run continues: the position after the last
// processed file, or the beginning when there is no checkpoint or the file
// is no longer in the order.
func resumeIndex(order []string, last *string) int {
	if last == nil || *last == "" {
		return 0
	}
	for i, p := range order {
		if p == *last {
			return i + 1
		}
	}
	return 0
}
