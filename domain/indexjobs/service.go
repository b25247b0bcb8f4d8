package indexjobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/repolens/repolens/internal/jobs"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
)

// Service wraps job submission and control around the repository and the
// dispatch queue.
type Service struct {
	repo  *Repository
	queue *jobs.Queue
	log   *slog.Logger
}

func NewService(repo *Repository, queue *jobs.Queue, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		queue: queue,
		log:   log.With(logger.Scope("indexjobs.svc")),
	}
}

// CreateJob validates the submission, persists the job and enqueues a
// processing session for it.
func (s *Service) CreateJob(ctx context.Context, req *CreateJobRequest) (*Job, error) {
	root := strings.TrimSpace(req.RepositoryRoot)
	if root == "" {
		return nil, apperror.NewInvalidInput("repository_root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, apperror.NewInvalidInput("repository_root must be an absolute path")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperror.NewInvalidInput("repository_root does not exist: " + root)
	}
	if !info.IsDir() {
		return nil, apperror.NewInvalidInput("repository_root is not a directory: " + root)
	}

	jobType := strings.ToUpper(strings.TrimSpace(req.Type))
	if jobType == "" {
		jobType = TypeFull
	}
	switch jobType {
	case TypeFull, TypeIncremental, TypeSelective:
	default:
		return nil, apperror.NewInvalidInput("unknown job type: " + req.Type)
	}

	for _, p := range req.IncludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, apperror.NewInvalidInput("invalid include pattern: " + p)
		}
	}
	for _, p := range req.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, apperror.NewInvalidInput("invalid exclude pattern: " + p)
		}
	}

	job := &Job{
		ID:              uuid.New(),
		RepositoryRoot:  root,
		Type:            jobType,
		Status:          StatusPending,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
		ForceReindex:    req.ForceReindex,
	}
	if job.IncludePatterns == nil {
		job.IncludePatterns = []string{}
	}
	if job.ExcludePatterns == nil {
		job.ExcludePatterns = []string{}
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if _, _, err := s.queue.Enqueue(ctx, job.ID.String(), 0); err != nil {
		// The job row survives; the orphan sweep will enqueue it later.
		s.log.Error("failed to enqueue new job", slog.String("job_id", job.ID.String()), logger.Error(err))
		return nil, err
	}

	jobsCreatedTotal.Inc()
	s.log.Info("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("type", jobType),
		slog.String("repository_root", root))
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListRecentJobs(ctx, limit)
}

// ListFiles returns a job's per-file states, optionally filtered by status.
func (s *Service) ListFiles(ctx context.Context, jobID uuid.UUID, status string, limit int) ([]*FileState, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" {
		switch status {
		case FileStatusPending, FileStatusProcessing, FileStatusCompleted, FileStatusFailed, FileStatusSkipped:
		default:
			return nil, apperror.NewInvalidInput("unknown file status: " + status)
		}
	}
	if _, err := s.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListFilesByStatus(ctx, jobID, status, limit)
}

// Pause asks a running job to stop at its next chunk boundary. The request
// wins or conflicts atomically; there is no window where two control
// requests both think they succeeded.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.TransitionJob(ctx, id, StatusRunning, StatusPaused, TransitionPatch{})
	if err != nil {
		return err
	}
	if !ok {
		job, err := s.repo.GetJob(ctx, id)
		if err != nil {
			return err
		}
		return apperror.NewConflict(fmt.Sprintf("cannot pause job in status %s", job.Status))
	}
	s.log.Info("job paused", slog.String("job_id", id.String()))
	return nil
}

// Resume returns a paused job to RUNNING and enqueues a fresh processing
// session; the run picks up after the last checkpoint.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.TransitionJob(ctx, id, StatusPaused, StatusRunning, TransitionPatch{})
	if err != nil {
		return err
	}
	if !ok {
		job, err := s.repo.GetJob(ctx, id)
		if err != nil {
			return err
		}
		return apperror.NewConflict(fmt.Sprintf("cannot resume job in status %s", job.Status))
	}
	if _, _, err := s.queue.Enqueue(ctx, id.String(), 0); err != nil {
		return err
	}
	s.log.Info("job resumed", slog.String("job_id", id.String()))
	return nil
}

// Cancel ends a job for good. Pending and paused jobs cancel immediately;
// running jobs observe the cancellation at their next chunk boundary.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	from := job.Status
	switch from {
	case StatusPending, StatusRunning, StatusPaused:
	default:
		return apperror.NewConflict(fmt.Sprintf("cannot cancel job in status %s", from))
	}

	ok, err := s.repo.TransitionJob(ctx, id, from, StatusCancelled, TransitionPatch{MarkCompleted: true})
	if err != nil {
		return err
	}
	if !ok {
		cur, err := s.repo.GetJob(ctx, id)
		if err != nil {
			return err
		}
		return apperror.NewConflict(fmt.Sprintf("cannot cancel job in status %s", cur.Status))
	}

	if from == StatusPaused {
		// No run loop is watching a paused job; sweep its rows now.
		if _, err := s.repo.MarkNonTerminalFilesSkipped(ctx, id, SkipReasonTerminated); err != nil {
			s.log.Warn("failed to sweep file states after cancel", slog.String("job_id", id.String()), logger.Error(err))
		}
		if _, err := s.repo.UpdateProgress(ctx, id); err != nil {
			s.log.Warn("failed to refresh progress after cancel", slog.String("job_id", id.String()), logger.Error(err))
		}
	}

	jobsFinishedTotal.WithLabelValues(StatusCancelled).Inc()
	s.log.Info("job cancelled",
		slog.String("job_id", id.String()),
		slog.String("was", from))
	return nil
}

// ListDeadLetters exposes the dead-letter backlog for the admin surface.
func (s *Service) ListDeadLetters(ctx context.Context, resolved bool, limit int) ([]*DeadLetter, error) {
	return s.repo.ListDeadLetters(ctx, resolved, limit)
}

// ResolveDeadLetter marks a dead letter handled.
func (s *Service) ResolveDeadLetter(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.ResolveDeadLetter(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotFound("dead letter", id.String())
	}
	return nil
}

// PruneDeadLetters drops resolved entries past the retention window.
func (s *Service) PruneDeadLetters(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.PruneDeadLetters(ctx, olderThan)
}

// ListSnapshots returns finished-job summaries, optionally scoped to one
// repository root.
func (s *Service) ListSnapshots(ctx context.Context, repoRoot string, limit int) ([]*Snapshot, error) {
	return s.repo.ListSnapshots(ctx, repoRoot, limit)
}

// Stats merges job counters with queue depth for the admin surface.
func (s *Service) Stats(ctx context.Context) (*JobStats, *jobs.Stats, error) {
	jobStats, err := s.repo.JobStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	queueStats, err := s.queue.GetStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jobStats, queueStats, nil
}

// RecoverStale returns dead workers' work to the queue: stuck processing
// claims are released, RUNNING jobs nobody is advancing drop back to
// PENDING, and pending jobs that lost their queue row get a fresh one.
// Recovered jobs resume from their checkpoints.
func (s *Service) RecoverStale(ctx context.Context, staleThreshold time.Duration) (released int, requeued int, err error) {
	released, err = s.queue.RecoverStaleJobs(ctx, int(staleThreshold.Minutes()))
	if err != nil {
		return 0, 0, err
	}

	stale, err := s.repo.RecoverStaleRunning(ctx, staleThreshold)
	if err != nil {
		return released, 0, err
	}
	orphans, err := s.repo.UnqueuedPendingJobs(ctx, staleThreshold)
	if err != nil {
		return released, 0, err
	}

	seen := make(map[uuid.UUID]struct{}, len(stale)+len(orphans))
	for _, id := range append(stale, orphans...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, _, err := s.queue.Enqueue(ctx, id.String(), 0); err != nil {
			s.log.Error("failed to requeue recovered job", slog.String("job_id", id.String()), logger.Error(err))
			continue
		}
		requeued++
	}

	if released > 0 || requeued > 0 {
		s.log.Warn("stale work recovered",
			slog.Int("claims_released", released),
			slog.Int("jobs_requeued", requeued))
	}
	return released, requeued, nil
}
