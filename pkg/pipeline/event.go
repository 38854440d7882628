// Package pipeline defines the shared vocabulary of the event pipeline:
// the staged Event record, its sources and statuses, and the error
// taxonomy that drives retry behavior.
package pipeline

import (
	"fmt"
	"time"
)

// Source identifies the upstream system an event came from.
type Source string

// Recognized event sources.
const (
	SourceCalendar     Source = "calendar"
	SourceMeeting      Source = "meeting_transcript"
	SourceSupportTag   Source = "support_tag"
	SourceSupportCo    Source = "support_company"
	SourceManualEnrich Source = "manual_enrich"
)

// Status is the lifecycle state of a staged event.
// Transitions are monotonic: queued → processing → {processed, ignored, failed}.
type Status string

// Event statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusIgnored    Status = "ignored"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusIgnored || s == StatusFailed
}

// Event is one durably staged webhook delivery.
type Event struct {
	ID             string    `json:"event_id"`
	Source         Source    `json:"source"`
	EventType      string    `json:"event_type"`
	ExternalID     string    `json:"external_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         Status    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Payload        []byte    `json:"payload"`
}

// IdempotencyKey builds the fingerprint for a business event.
func IdempotencyKey(source Source, eventType, externalID string) string {
	return fmt.Sprintf("%s:%s:%s", source, eventType, externalID)
}
