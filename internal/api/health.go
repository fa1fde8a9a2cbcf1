package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"docdrift/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"` // "ok" or "degraded"
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Backend   string    `json:"backend"`
	Store     string    `json:"store"`
	Uptime    string    `json:"uptime"`
	Error     string    `json:"error,omitempty"`
}

// handleHealth reports process and store health. A store outage still
// answers 200 with status "degraded".
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC(),
		Version:   version.Info(),
		Store:     "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Engine != nil {
		resp.Backend = s.deps.Engine.Backend()
		if err := s.deps.Engine.Ping(c.Request().Context()); err != nil {
			resp.Status, resp.Store, resp.Error = "degraded", "unavailable", err.Error()
		}
	}
	return c.JSON(http.StatusOK, resp)
}
