package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// calendarSignatureHeader carries the timestamped HMAC of the raw body.
const calendarSignatureHeader = "Calendar-Signature"

// calendarWebhookHandler handles POST /webhooks/calendar.
//
// The scheduler posts invitee lifecycle events. A cancellation with the
// reschedule marker set is routed as a reschedule, so the two cases carry
// distinct fingerprints and a reschedule is never deduplicated against the
// cancellation that preceded it.
func (s *Server) calendarWebhookHandler(c *echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := s.calendarVerifier.Verify(c.Request().Header.Get(calendarSignatureHeader), body); err != nil {
		s.logger.Warn("Calendar webhook rejected", "error", err)
		return errUnauthorized()
	}

	var env calendarEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	var eventType string
	switch env.Event {
	case "invitee.created":
		eventType = "booked"
	case "invitee.canceled":
		eventType = "canceled"
		if env.Payload.Rescheduled {
			eventType = "rescheduled"
		}
	default:
		s.logger.Info("Calendar event type not handled", "event", env.Event)
		return c.JSON(http.StatusOK, &IgnoredResponse{OK: true, Ignored: true, Reason: "unknown_event_type"})
	}

	externalID := env.externalID()
	if externalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload has no invitee identifier")
	}

	return s.stage(c, pipeline.SourceCalendar, eventType, externalID, body)
}
