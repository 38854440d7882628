package api

import (
	"time"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/queue"
)

// QueuedResponse acknowledges a freshly staged event.
type QueuedResponse struct {
	OK             bool   `json:"ok"`
	Queued         bool   `json:"queued"`
	EventID        string `json:"event_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// DuplicateResponse acknowledges a redelivery; EventID names the original.
type DuplicateResponse struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}

// IgnoredResponse acknowledges a delivery that was dropped without staging.
type IgnoredResponse struct {
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason"`
}

// ErrorResponse is the uniform 4xx/5xx body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// DebugEventResponse is the staged event as seen by GET /debug/events/:id.
type DebugEventResponse struct {
	EventID        string    `json:"event_id"`
	Source         string    `json:"source"`
	EventType      string    `json:"event_type"`
	ExternalID     string    `json:"external_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toDebugEventResponse(ev *pipeline.Event) *DebugEventResponse {
	return &DebugEventResponse{
		EventID:        ev.ID,
		Source:         string(ev.Source),
		EventType:      ev.EventType,
		ExternalID:     ev.ExternalID,
		IdempotencyKey: ev.IdempotencyKey,
		Status:         string(ev.Status),
		Attempts:       ev.Attempts,
		LastError:      ev.LastError,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
}

// DebugIdemResponse is the guard state for one fingerprint.
type DebugIdemResponse struct {
	IdempotencyKey string `json:"idempotency_key"`
	Acquired       bool   `json:"acquired"`
	EventID        string `json:"event_id,omitempty"`
	Processed      bool   `json:"processed"`
}

// DebugStatusResponse summarizes the queue and the worker pool for
// GET /debug/status.
type DebugStatusResponse struct {
	Queued         int64                 `json:"queued"`
	Scheduled      int64                 `json:"scheduled"`
	Failed         int64                 `json:"failed"`
	RecentFailures []queue.FailureRecord `json:"recent_failures"`
	Pool           *queue.PoolHealth     `json:"pool,omitempty"`
}
