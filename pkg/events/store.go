// Package events durably stages incoming webhook events in the K/V store.
//
// Each event lives in one hash at event:{event_id} with the configured TTL.
// The attempts counter on the event is the authoritative retry counter; the
// queue never tracks attempts itself.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

// ErrNotFound indicates the event does not exist (never stored, or TTL expired).
var ErrNotFound = store.ErrNotFound

// Store persists Event records.
type Store struct {
	kv     *store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates an event store applying ttl to every record.
func NewStore(kv *store.Store, ttl time.Duration) *Store {
	return &Store{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "event-store"),
	}
}

func eventKey(id string) string { return "event:" + id }

// Create stages a new event with a fresh server-generated id,
// status=queued and attempts=0.
func (s *Store) Create(ctx context.Context, source pipeline.Source, eventType, externalID string, payload []byte, idempotencyKey string) (*pipeline.Event, error) {
	now := time.Now().UTC()
	ev := &pipeline.Event{
		ID:             uuid.NewString(),
		Source:         source,
		EventType:      eventType,
		ExternalID:     externalID,
		IdempotencyKey: idempotencyKey,
		Status:         pipeline.StatusQueued,
		Attempts:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
		Payload:        payload,
	}

	fields := map[string]any{
		"id":              ev.ID,
		"source":          string(ev.Source),
		"event_type":      ev.EventType,
		"external_id":     ev.ExternalID,
		"idempotency_key": ev.IdempotencyKey,
		"status":          string(ev.Status),
		"attempts":        ev.Attempts,
		"last_error":      "",
		"created_at":      now.Format(time.RFC3339Nano),
		"updated_at":      now.Format(time.RFC3339Nano),
		"payload":         string(payload),
	}
	if err := s.kv.HSet(ctx, eventKey(ev.ID), fields, s.ttl); err != nil {
		return nil, fmt.Errorf("storing event: %w", err)
	}

	s.logger.Info("Event staged",
		"event_id", ev.ID,
		"source", ev.Source,
		"event_type", ev.EventType,
		"idempotency_key", ev.IdempotencyKey)
	return ev, nil
}

// Load fetches an event by id. Returns ErrNotFound when the record is
// absent or TTL-expired.
func (s *Store) Load(ctx context.Context, eventID string) (*pipeline.Event, error) {
	fields, err := s.kv.HGetAll(ctx, eventKey(eventID))
	if err != nil {
		return nil, err
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return &pipeline.Event{
		ID:             fields["id"],
		Source:         pipeline.Source(fields["source"]),
		EventType:      fields["event_type"],
		ExternalID:     fields["external_id"],
		IdempotencyKey: fields["idempotency_key"],
		Status:         pipeline.Status(fields["status"]),
		Attempts:       attempts,
		LastError:      fields["last_error"],
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Payload:        []byte(fields["payload"]),
	}, nil
}

// SetStatus updates the status and optionally last_error, preserving all
// other fields. The record keeps its original TTL (HSET on an existing hash
// does not reset expiry; the explicit re-expire keeps the original bound).
func (s *Store) SetStatus(ctx context.Context, eventID string, status pipeline.Status, lastError string) error {
	fields := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if lastError != "" {
		fields["last_error"] = lastError
	}
	// TTL 0: only touch fields, the hash expiry set at Create stands.
	if err := s.kv.HSet(ctx, eventKey(eventID), fields, 0); err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the attempts counter and returns the new value.
func (s *Store) IncrementAttempts(ctx context.Context, eventID string) (int, error) {
	n, err := s.kv.HIncrBy(ctx, eventKey(eventID), "attempts", 1)
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}
	return int(n), nil
}

// Delete removes a staged event. Used by staging when losing the
// idempotency race; TTL would reclaim it anyway.
func (s *Store) Delete(ctx context.Context, eventID string) error {
	return s.kv.Del(ctx, eventKey(eventID))
}
