package monitoring

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the admin surface.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	admin := e.Group("/admin")

	admin.GET("/stats", h.Stats)
	admin.GET("/dead-letters", h.ListDeadLetters)
	admin.POST("/dead-letters/:id/resolve", h.ResolveDeadLetter)
	admin.POST("/recover-stale", h.RecoverStale)
}
