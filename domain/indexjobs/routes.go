package indexjobs

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the job control surface.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/jobs")

	g.POST("", h.CreateJob)
	g.GET("", h.ListJobs)
	g.GET("/snapshots", h.ListSnapshots)
	g.GET("/:id", h.GetJob)
	g.POST("/:id/pause", h.PauseJob)
	g.POST("/:id/resume", h.ResumeJob)
	g.POST("/:id/cancel", h.CancelJob)
	g.GET("/:id/files", h.ListFiles)
	g.GET("/:id/events", h.StreamEvents)
}
