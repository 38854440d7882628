package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// stage runs the staging pipeline for a verified, routed delivery: store the
// event, claim the fingerprint, enqueue the job. Exactly one of the three
// acknowledgement envelopes is written on success; any store failure becomes
// a 500 and leaves no claim behind.
func (s *Server) stage(c *echo.Context, source pipeline.Source, eventType, externalID string, payload []byte) error {
	ctx := c.Request().Context()
	key := pipeline.IdempotencyKey(source, eventType, externalID)

	ev, err := s.events.Create(ctx, source, eventType, externalID, payload, key)
	if err != nil {
		return mapStagingError(err)
	}

	res, err := s.guard.TryAcquire(ctx, key, ev.ID)
	if err != nil {
		// The orphaned record is reclaimed by TTL if this delete loses too.
		_ = s.events.Delete(ctx, ev.ID)
		return mapStagingError(err)
	}
	if !res.Acquired {
		if err := s.events.Delete(ctx, ev.ID); err != nil {
			s.logger.Warn("Failed to delete duplicate event, TTL will reclaim it",
				"event_id", ev.ID, "error", err)
		}
		s.logger.Info("Duplicate delivery",
			"idempotency_key", key, "existing_event_id", res.ExistingEventID)
		return c.JSON(http.StatusOK, &DuplicateResponse{
			OK:        true,
			Duplicate: true,
			EventID:   res.ExistingEventID,
		})
	}

	if _, err := s.queue.Enqueue(ctx, key, ev.ID); err != nil {
		// Release the claim so the upstream retry is not misread as a
		// duplicate, and leave the event visible on the debug surface.
		if relErr := s.guard.Release(ctx, key); relErr != nil {
			s.logger.Error("Failed to release idempotency key after enqueue failure",
				"idempotency_key", key, "error", relErr)
		}
		_ = s.events.SetStatus(ctx, ev.ID, pipeline.StatusFailed, "enqueue failed: "+err.Error())
		return mapStagingError(err)
	}

	return c.JSON(http.StatusOK, &QueuedResponse{
		OK:             true,
		Queued:         true,
		EventID:        ev.ID,
		IdempotencyKey: key,
	})
}
