package api

import (
	"encoding/json"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// meetingSecretHeader carries the shared secret of the transcript provider.
const meetingSecretHeader = "X-Meeting-Secret"

// meetingWebhookHandler handles POST /webhooks/meetings.
//
// Only completed meetings are staged. Meetings under the configured minimum
// duration are acknowledged but never stored, so a flood of one-minute calls
// cannot fill the event store.
func (s *Server) meetingWebhookHandler(c *echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := s.meetingVerifier.Verify(c.Request().Header.Get(meetingSecretHeader), body); err != nil {
		s.logger.Warn("Meeting webhook rejected", "error", err)
		return errUnauthorized()
	}

	var env meetingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	switch env.Trigger {
	case "", "meeting_end", "completed":
	default:
		s.logger.Info("Meeting trigger not handled", "trigger", env.Trigger)
		return c.JSON(http.StatusOK, &IgnoredResponse{OK: true, Ignored: true, Reason: "unknown_event_type"})
	}

	if d := env.duration(); d > 0 && d < float64(s.cfg.MinDurationMinutes) {
		s.logger.Info("Meeting below minimum duration", "duration_minutes", d)
		return c.JSON(http.StatusOK, &IgnoredResponse{OK: true, Ignored: true, Reason: "too_short"})
	}

	externalID := env.externalID()
	if externalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload has no session identifier")
	}

	return s.stage(c, pipeline.SourceMeeting, "completed", externalID, body)
}

// duration returns the meeting length in minutes, preferring the explicit
// field over the start/end pair. Zero means unknown.
func (e *meetingEnvelope) duration() float64 {
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	start, err1 := time.Parse(time.RFC3339, e.StartTime)
	end, err2 := time.Parse(time.RFC3339, e.EndTime)
	if err1 != nil || err2 != nil || !end.After(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}
