package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/events"
	"github.com/revcrew/leadflow/pkg/queue"
	"github.com/revcrew/leadflow/pkg/store"
)

// recentFailureLimit caps the failure list on the status endpoint.
const recentFailureLimit = 20

// debugGate hides the debug surface unless ALLOW_DEBUG_ENDPOINTS is set.
// A plain 404 keeps the surface indistinguishable from an absent route.
func (s *Server) debugGate() *echo.HTTPError {
	if !s.cfg.AllowDebugEndpoints {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

// getDebugEventHandler handles GET /debug/events/:id.
func (s *Server) getDebugEventHandler(c *echo.Context) error {
	if err := s.debugGate(); err != nil {
		return err
	}
	eventID := c.Param("id")
	if eventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event id is required")
	}

	ev, err := s.events.Load(c.Request().Context(), eventID)
	if errors.Is(err, events.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	}
	if err != nil {
		return mapStagingError(err)
	}
	return c.JSON(http.StatusOK, toDebugEventResponse(ev))
}

// getDebugIdemHandler handles GET /debug/idem/*.
//
// Fingerprints embed external ids that may themselves contain slashes
// (calendar ids are URIs), hence the wildcard route.
func (s *Server) getDebugIdemHandler(c *echo.Context) error {
	if err := s.debugGate(); err != nil {
		return err
	}
	key := c.Param("*")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "idempotency key is required")
	}

	ctx := c.Request().Context()
	resp := &DebugIdemResponse{IdempotencyKey: key}

	holder, err := s.guard.HolderOf(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return mapStagingError(err)
	default:
		resp.Acquired = true
		resp.EventID = holder
	}

	processed, err := s.guard.IsProcessed(ctx, key)
	if err != nil {
		return mapStagingError(err)
	}
	resp.Processed = processed

	return c.JSON(http.StatusOK, resp)
}

// getDebugStatusHandler handles GET /debug/status.
func (s *Server) getDebugStatusHandler(c *echo.Context) error {
	if err := s.debugGate(); err != nil {
		return err
	}
	ctx := c.Request().Context()

	queued, err := s.queue.Depth(ctx)
	if err != nil {
		return mapStagingError(err)
	}
	scheduled, err := s.queue.ScheduledCount(ctx)
	if err != nil {
		return mapStagingError(err)
	}
	failed, err := s.queue.FailedCount(ctx)
	if err != nil {
		return mapStagingError(err)
	}
	failures, err := s.queue.RecentFailures(ctx, recentFailureLimit)
	if err != nil {
		return mapStagingError(err)
	}
	if failures == nil {
		failures = []queue.FailureRecord{}
	}

	resp := &DebugStatusResponse{
		Queued:         queued,
		Scheduled:      scheduled,
		Failed:         failed,
		RecentFailures: failures,
	}
	if s.pool != nil {
		resp.Pool = s.pool.Health()
	}
	return c.JSON(http.StatusOK, resp)
}
