package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/version"
)

// healthzHandler handles GET /healthz.
//
// Liveness only: the process is healthy when it can reach its own K/V
// store. External dependencies (CRM, LLM, enrichment APIs) are excluded so
// an upstream outage does not get the process restarted.
func (s *Server) healthzHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := s.queue.Depth(reqCtx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:  "unhealthy",
			Version: version.GitCommit,
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "ok",
		Version: version.GitCommit,
	})
}
