package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// maxBodyBytes bounds a webhook body. Meeting payloads carry full
// transcripts, so the limit is generous.
const maxBodyBytes = 4 << 20

// readBody reads the raw request body. The bytes are both the signature
// input and the stored payload, so handlers never re-serialize.
func readBody(c *echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return body, nil
}

// calendarEnvelope is the routing slice of a calendar webhook. The stored
// payload keeps the full body; only event name, reschedule marker and
// external id are needed here.
type calendarEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		URI         string `json:"uri"`
		UUID        string `json:"uuid"`
		Rescheduled bool   `json:"rescheduled"`
		Invitee     struct {
			URI  string `json:"uri"`
			UUID string `json:"uuid"`
		} `json:"invitee"`
	} `json:"payload"`
}

// externalID returns the most specific invitee identifier present.
func (e *calendarEnvelope) externalID() string {
	for _, id := range []string{e.Payload.URI, e.Payload.Invitee.URI, e.Payload.UUID, e.Payload.Invitee.UUID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// meetingEnvelope is the routing slice of a meeting-transcript webhook.
type meetingEnvelope struct {
	Trigger         string  `json:"trigger"`
	SessionID       string  `json:"session_id"`
	MeetingID       string  `json:"meeting_id"`
	ID              string  `json:"id"`
	DurationMinutes float64 `json:"duration_minutes"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
}

func (e *meetingEnvelope) externalID() string {
	for _, id := range []string{e.SessionID, e.MeetingID, e.ID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// supportEnvelope is the routing slice of a support-tool webhook. The topic
// fans out to the tag and company sources.
type supportEnvelope struct {
	Topic string `json:"topic"`
	Data  struct {
		Item struct {
			ID        string `json:"id"`
			CreatedAt int64  `json:"created_at"`
			UpdatedAt int64  `json:"updated_at"`
			Tag       struct {
				Name string `json:"name"`
			} `json:"tag"`
			Contact struct {
				ID string `json:"id"`
			} `json:"contact"`
		} `json:"item"`
	} `json:"data"`
}

// enrichRequest is the body of POST /enrich/lead.
type enrichRequest struct {
	Email  string `json:"email"`
	LeadID string `json:"lead_id"`
}
