package indexjobs

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/sse"
)

// Handler exposes the job control surface over HTTP.
type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With(logger.Scope("indexjobs.http")),
	}
}

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(c echo.Context) error {
	var req CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrInvalidInput.WithMessage("invalid request body")
	}
	job, err := h.svc.CreateJob(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CreateJobResponse{JobID: job.ID.String()})
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.svc.ListJobs(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	resp := ListJobsResponse{Jobs: make([]*JobResponse, 0, len(list))}
	for _, job := range list {
		resp.Jobs = append(resp.Jobs, toJobResponse(job))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetJob handles GET /jobs/:id.
func (h *Handler) GetJob(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	job, err := h.svc.GetJob(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toJobResponse(job))
}

// PauseJob handles POST /jobs/:id/pause.
func (h *Handler) PauseJob(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Pause(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ControlResponse{OK: true})
}

// ResumeJob handles POST /jobs/:id/resume.
func (h *Handler) ResumeJob(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Resume(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ControlResponse{OK: true})
}

// CancelJob handles POST /jobs/:id/cancel.
func (h *Handler) CancelJob(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ControlResponse{OK: true})
}

// ListFiles handles GET /jobs/:id/files.
func (h *Handler) ListFiles(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	files, err := h.svc.ListFiles(c.Request().Context(), id, c.QueryParam("status"), limit)
	if err != nil {
		return err
	}
	resp := ListFilesResponse{Files: make([]*FileStateResponse, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, toFileStateResponse(f))
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSnapshots handles GET /jobs/snapshots: summaries of finished runs,
// optionally scoped to one repository root.
func (h *Handler) ListSnapshots(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	snaps, err := h.svc.ListSnapshots(c.Request().Context(), c.QueryParam("repository_root"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: snaps})
}

// StreamEvents handles GET /jobs/:id/events: a server-sent event stream of
// progress snapshots and status transitions until the job is terminal. The
// stream polls the job row, so it observes exactly what any other reader
// would and needs no coupling to the worker.
func (h *Handler) StreamEvents(c echo.Context) error {
	id, err := parseJobID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	job, err := h.svc.GetJob(ctx, id)
	if err != nil {
		return err
	}

	w := sse.NewWriter(c.Response())
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Close()

	// Current state first so late subscribers render immediately.
	if err := w.WriteEvent(string(sse.EventProgress), progressEvent(job)); err != nil {
		return nil
	}
	if job.IsTerminal() {
		_ = w.WriteEvent(string(sse.EventDone), sse.NewDoneEvent(job.Status))
		return nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	prev := job
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if err := w.WriteComment("keep-alive"); err != nil {
				return nil
			}
		case <-ticker.C:
			cur, err := h.svc.GetJob(ctx, id)
			if err != nil {
				h.log.Warn("event stream lost job state",
					slog.String("job_id", id.String()),
					logger.Error(err))
				_ = w.WriteEvent(string(sse.EventError), sse.NewErrorEvent("job state unavailable"))
				return nil
			}
			if cur.Status != prev.Status {
				_ = w.WriteEvent(string(sse.EventStatus), sse.NewStatusEvent(id.String(), prev.Status, cur.Status))
			}
			if progressChanged(prev, cur) {
				if err := w.WriteEvent(string(sse.EventProgress), progressEvent(cur)); err != nil {
					return nil
				}
			}
			if cur.IsTerminal() {
				_ = w.WriteEvent(string(sse.EventDone), sse.NewDoneEvent(cur.Status))
				return nil
			}
			prev = cur
		}
	}
}

func parseJobID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.ErrInvalidInput.WithMessage("invalid job ID")
	}
	return id, nil
}

func progressEvent(j *Job) sse.ProgressEvent {
	last := ""
	if j.LastProcessedFile != nil {
		last = *j.LastProcessedFile
	}
	return sse.NewProgressEvent(j.ID.String(), j.Status,
		j.TotalFiles, j.ProcessedFiles, j.FailedFiles, j.SkippedFiles,
		j.ProgressFraction, last)
}

func progressChanged(a, b *Job) bool {
	return a.Status != b.Status ||
		a.TotalFiles != b.TotalFiles ||
		a.ProcessedFiles != b.ProcessedFiles ||
		a.FailedFiles != b.FailedFiles ||
		a.SkippedFiles != b.SkippedFiles
}
