package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(store.NewWithClient(rdb), ttl), mr
}

func TestCreateAndLoad(t *testing.T) {
	s, mr := newTestStore(t, 30*24*time.Hour)
	ctx := context.Background()

	payload := []byte(`{"event":"invitee.created"}`)
	ev, err := s.Create(ctx, pipeline.SourceCalendar, "booked", "evt-123", payload, "calendar:booked:evt-123")
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	assert.Equal(t, pipeline.StatusQueued, ev.Status)
	assert.Zero(t, ev.Attempts)

	loaded, err := s.Load(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, loaded.ID)
	assert.Equal(t, pipeline.SourceCalendar, loaded.Source)
	assert.Equal(t, "booked", loaded.EventType)
	assert.Equal(t, "evt-123", loaded.ExternalID)
	assert.Equal(t, "calendar:booked:evt-123", loaded.IdempotencyKey)
	assert.Equal(t, payload, loaded.Payload)

	ttl := mr.TTL("event:" + ev.ID)
	assert.InDelta(t, (30 * 24 * time.Hour).Seconds(), ttl.Seconds(), 5)
}

func TestLoadMissing(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusPreservesFields(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	ev, err := s.Create(ctx, pipeline.SourceMeeting, "completed", "m-1", []byte(`{}`), "meeting_transcript:completed:m-1")
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, ev.ID, pipeline.StatusProcessing, ""))
	loaded, err := s.Load(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessing, loaded.Status)
	assert.Equal(t, "m-1", loaded.ExternalID)
	assert.Empty(t, loaded.LastError)

	require.NoError(t, s.SetStatus(ctx, ev.ID, pipeline.StatusFailed, "permanent: llm_schema_invalid"))
	loaded, err = s.Load(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailed, loaded.Status)
	assert.Equal(t, "permanent: llm_schema_invalid", loaded.LastError)
}

func TestIncrementAttempts(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	ev, err := s.Create(ctx, pipeline.SourceSupportTag, "tag_added", "c-9", []byte(`{}`), "support_tag:tag_added:c-9")
	require.NoError(t, err)

	n, err := s.IncrementAttempts(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementAttempts(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.Load(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Attempts)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	ev, err := s.Create(ctx, pipeline.SourceCalendar, "booked", "evt-1", []byte(`{}`), "calendar:booked:evt-1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, ev.ID))

	_, err = s.Load(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
