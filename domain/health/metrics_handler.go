package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/repolens/repolens/domain/scheduler"
)

// MetricsHandler serves queue throughput and scheduler task snapshots as
// JSON, alongside the Prometheus endpoint.
type MetricsHandler struct {
	db    *bun.DB
	sched *scheduler.Scheduler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db *bun.DB, sched *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{
		db:    db,
		sched: sched,
	}
}

// QueueMetrics represents dispatch queue counts with arrival windows
type QueueMetrics struct {
	Pending     int64  `json:"pending"`
	Processing  int64  `json:"processing"`
	Completed   int64  `json:"completed"`
	Failed      int64  `json:"failed"`
	DeadLetter  int64  `json:"dead_letter"`
	Total       int64  `json:"total"`
	LastHour    int64  `json:"last_hour"`
	Last24Hours int64  `json:"last_24_hours"`
	Timestamp   string `json:"timestamp"`
}

// JobQueueMetrics returns dispatch queue counts and recent arrival rates
func (h *MetricsHandler) JobQueueMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	var metrics struct {
		Pending     int64 `bun:"pending"`
		Processing  int64 `bun:"processing"`
		Completed   int64 `bun:"completed"`
		Failed      int64 `bun:"failed"`
		DeadLetter  int64 `bun:"dead_letter"`
		Total       int64 `bun:"total"`
		LastHour    int64 `bun:"last_hour"`
		Last24Hours int64 `bun:"last_24_hours"`
	}

	err := h.db.NewRaw(`
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'processing') as processing,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'dead_letter') as dead_letter,
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '1 hour') as last_hour,
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '24 hours') as last_24_hours
		FROM idx.index_queue`).Scan(ctx, &metrics)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, QueueMetrics{
		Pending:     metrics.Pending,
		Processing:  metrics.Processing,
		Completed:   metrics.Completed,
		Failed:      metrics.Failed,
		DeadLetter:  metrics.DeadLetter,
		Total:       metrics.Total,
		LastHour:    metrics.LastHour,
		Last24Hours: metrics.Last24Hours,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// SchedulerMetrics returns the registered maintenance tasks with their
// schedules and run times
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.sched.IsRunning(),
		"tasks":   h.sched.GetTaskInfo(),
	})
}
