// Package idempotency implements the fingerprint guard that keeps each
// business event to at most one staged record and one completed execution.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/revcrew/leadflow/pkg/store"
)

const (
	acquirePrefix   = "event_by_idem:"
	processedPrefix = "processed:"
)

// AcquireResult is the outcome of TryAcquire.
type AcquireResult struct {
	Acquired bool
	// ExistingEventID is the holder's event id when Acquired is false.
	ExistingEventID string
}

// Guard performs atomic acquire/release of fingerprints and tracks the
// processed marker. Both keys carry the same TTL.
type Guard struct {
	kv     *store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewGuard creates a guard applying ttl to both key families.
func NewGuard(kv *store.Store, ttl time.Duration) *Guard {
	return &Guard{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "idempotency"),
	}
}

// TryAcquire claims the fingerprint for eventID via atomic set-if-absent.
// Racing callers see at most one Acquired; a loser learns the pre-existing
// event id.
func (g *Guard) TryAcquire(ctx context.Context, key, eventID string) (AcquireResult, error) {
	won, err := g.kv.SetNX(ctx, acquirePrefix+key, eventID, g.ttl)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("acquiring idempotency key: %w", err)
	}
	if won {
		return AcquireResult{Acquired: true}, nil
	}

	existing, err := g.kv.Get(ctx, acquirePrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		// Holder expired between SETNX and GET. Extremely narrow window;
		// treat as duplicate with unknown holder rather than retrying the race.
		return AcquireResult{Acquired: false}, nil
	}
	if err != nil {
		return AcquireResult{}, fmt.Errorf("reading idempotency holder: %w", err)
	}
	return AcquireResult{Acquired: false, ExistingEventID: existing}, nil
}

// Release frees the fingerprint. Only used when staging fails after a
// successful acquire, so upstream retries are not misread as duplicates.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.kv.Del(ctx, acquirePrefix+key)
}

// HolderOf returns the event id holding the fingerprint, or ErrNotFound.
func (g *Guard) HolderOf(ctx context.Context, key string) (string, error) {
	return g.kv.Get(ctx, acquirePrefix+key)
}

// IsProcessed reports whether a handler already completed for the fingerprint.
func (g *Guard) IsProcessed(ctx context.Context, key string) (bool, error) {
	ok, err := g.kv.Exists(ctx, processedPrefix+key)
	if err != nil {
		return false, fmt.Errorf("checking processed marker: %w", err)
	}
	return ok, nil
}

// MarkProcessed records handler completion. After this point no handler for
// the fingerprint may perform an externally-observable write.
func (g *Guard) MarkProcessed(ctx context.Context, key string) error {
	if err := g.kv.Set(ctx, processedPrefix+key, "1", g.ttl); err != nil {
		return fmt.Errorf("setting processed marker: %w", err)
	}
	g.logger.Debug("Fingerprint marked processed", "idempotency_key", key)
	return nil
}
