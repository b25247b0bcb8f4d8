package indexjobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/jobs"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/memwatch"
)

// RunWorker claims queued jobs and drives the orchestrator. One claim is
// one processing session; pause/resume cycles each get their own queue row,
// so a queue row closing never means more than "this session ended".
type RunWorker struct {
	queue     *jobs.Queue
	orch      *Orchestrator
	svc       *Service
	scaler    *memwatch.ConcurrencyScaler
	worker    *jobs.Worker
	cfg       config.WorkerConfig
	claimedBy string
	log       *slog.Logger
}

func NewRunWorker(queue *jobs.Queue, orch *Orchestrator, svc *Service, scaler *memwatch.ConcurrencyScaler, cfg *config.Config, log *slog.Logger) *RunWorker {
	w := &RunWorker{
		queue:  queue,
		orch:   orch,
		svc:    svc,
		scaler: scaler,
		cfg:    cfg.Worker,
		log:    log.With(logger.Scope("indexjobs.worker")),
	}
	host, _ := os.Hostname()
	w.claimedBy = fmt.Sprintf("%s/%d", host, os.Getpid())

	w.worker = jobs.NewWorker(jobs.WorkerConfig{
		Name:                  "index-jobs",
		PollInterval:          cfg.Worker.PollInterval,
		BatchSize:             cfg.Worker.Concurrency,
		StaleThresholdMinutes: cfg.Worker.StaleThresholdMinutes,
	}, log, w.processBatch)
	return w
}

// Start releases claims left behind by dead workers, then begins polling.
func (w *RunWorker) Start(ctx context.Context) error {
	if released, err := w.queue.RecoverStaleJobs(ctx, w.cfg.StaleThresholdMinutes); err != nil {
		w.log.Warn("stale claim recovery failed on startup", logger.Error(err))
	} else if released > 0 {
		w.log.Info("released stale queue claims on startup", slog.Int("count", released))
	}
	return w.worker.Start(ctx)
}

func (w *RunWorker) Stop(ctx context.Context) error {
	return w.worker.Stop(ctx)
}

func (w *RunWorker) IsRunning() bool {
	return w.worker.IsRunning()
}

func (w *RunWorker) Metrics() jobs.WorkerMetrics {
	return w.worker.Metrics()
}

// processBatch claims up to the effective concurrency and runs each job to
// its next yield point, waiting for the whole batch before the next poll.
func (w *RunWorker) processBatch(ctx context.Context) error {
	concurrency := w.cfg.Concurrency
	if w.scaler != nil {
		concurrency = w.scaler.GetConcurrency(concurrency)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ids, err := w.queue.Dequeue(ctx, concurrency, w.claimedBy)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		sem <- struct{}{}
		wg.Add(1)
		go func(queueID string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.processClaim(ctx, queueID)
		}(id)
	}
	wg.Wait()
	return nil
}

func (w *RunWorker) processClaim(ctx context.Context, queueID string) {
	entry := &QueueEntry{}
	if err := w.queue.GetJobByID(ctx, queueID, entry); err != nil {
		w.log.Error("failed to load claimed queue row", slog.String("queue_id", queueID), logger.Error(err))
		return
	}
	if entry.ID == uuid.Nil {
		w.log.Warn("claimed queue row vanished", slog.String("queue_id", queueID))
		return
	}

	log := w.log.With(
		slog.String("queue_id", queueID),
		slog.String("job_id", entry.JobID.String()))

	if err := w.orch.Run(ctx, entry.JobID); err != nil {
		// Infrastructure failure; back off and redeliver.
		w.worker.IncrementFailure()
		log.Warn("job run failed, scheduling redelivery", logger.Error(err))
		if markErr := w.queue.MarkFailed(ctx, queueID, entry.AttemptCount, err.Error()); markErr != nil {
			log.Error("failed to mark queue row for retry", logger.Error(markErr))
		}
		return
	}

	// The run ended without infrastructure errors; how the claim closes
	// depends on where the job landed.
	job, err := w.svc.GetJob(ctx, entry.JobID)
	if err != nil {
		w.worker.IncrementFailure()
		log.Error("failed to read job after run", logger.Error(err))
		if markErr := w.queue.MarkFailed(ctx, queueID, entry.AttemptCount, "job row unreadable after run"); markErr != nil {
			log.Error("failed to mark queue row for retry", logger.Error(markErr))
		}
		return
	}

	switch job.Status {
	case StatusFailed, StatusCancelled:
		// Terminal by decision, not by infrastructure; re-running cannot
		// change the outcome.
		msg := job.Status
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		if err := w.queue.MarkFailedTerminal(ctx, queueID, msg); err != nil {
			log.Error("failed to close queue row", logger.Error(err))
		}
		w.worker.IncrementFailure()
	default:
		// COMPLETED, or a clean yield on pause or pending cancellation;
		// either way this session is over.
		if err := w.queue.MarkCompleted(ctx, queueID); err != nil {
			log.Error("failed to close queue row", logger.Error(err))
		}
		w.worker.IncrementSuccess()
	}
}
