package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/config"
)

func TestDebugEndpointsHiddenByDefault(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{
		"/debug/events/some-id",
		"/debug/idem/calendar:booked:abc",
		"/debug/status",
	} {
		rec := ts.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %s", path)
	}
}

func debugEnabled(cfg *config.Config) { cfg.AllowDebugEndpoints = true }

func TestDebugEventLookup(t *testing.T) {
	ts := newTestServer(t, debugEnabled)

	staged := decodeResponse[QueuedResponse](t,
		ts.do(http.MethodPost, "/enrich/lead", []byte(`{"email": "alice@acme.example"}`), enrichHeaders()))

	rec := ts.do(http.MethodGet, "/debug/events/"+staged.EventID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ev := decodeResponse[DebugEventResponse](t, rec)
	assert.Equal(t, staged.EventID, ev.EventID)
	assert.Equal(t, "manual_enrich", ev.Source)
	assert.Equal(t, "enrich_request", ev.EventType)
	assert.Equal(t, "queued", ev.Status)
	assert.Zero(t, ev.Attempts)

	rec = ts.do(http.MethodGet, "/debug/events/no-such-event", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugIdemLookup(t *testing.T) {
	ts := newTestServer(t, debugEnabled)

	staged := decodeResponse[QueuedResponse](t,
		ts.do(http.MethodPost, "/enrich/lead", []byte(`{"email": "alice@acme.example"}`), enrichHeaders()))

	rec := ts.do(http.MethodGet, "/debug/idem/"+staged.IdempotencyKey, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[DebugIdemResponse](t, rec)
	assert.Equal(t, staged.IdempotencyKey, resp.IdempotencyKey)
	assert.True(t, resp.Acquired)
	assert.Equal(t, staged.EventID, resp.EventID)
	assert.False(t, resp.Processed)

	rec = ts.do(http.MethodGet, "/debug/idem/manual_enrich:enrich_request:nobody@x", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse[DebugIdemResponse](t, rec)
	assert.False(t, resp.Acquired)
	assert.Empty(t, resp.EventID)
}

func TestDebugStatusCounts(t *testing.T) {
	ts := newTestServer(t, debugEnabled)

	ts.do(http.MethodPost, "/enrich/lead", []byte(`{"email": "alice@acme.example"}`), enrichHeaders())
	ts.do(http.MethodPost, "/enrich/lead", []byte(`{"email": "bob@beta.example"}`), enrichHeaders())

	// Drain one job into the failure sink.
	job, err := ts.queue.Claim(context.Background(), "pod-test")
	require.NoError(t, err)
	require.NoError(t, ts.queue.Fail(context.Background(), job, "handler exploded"))

	rec := ts.do(http.MethodGet, "/debug/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[DebugStatusResponse](t, rec)
	assert.Equal(t, int64(1), resp.Queued)
	assert.Equal(t, int64(0), resp.Scheduled)
	assert.Equal(t, int64(1), resp.Failed)
	require.Len(t, resp.RecentFailures, 1)
	assert.Equal(t, job.JobID, resp.RecentFailures[0].JobID)
	assert.Equal(t, "handler exploded", resp.RecentFailures[0].Error)
}

func TestDebugStatusReportsPoolHealth(t *testing.T) {
	ts := newTestServer(t, debugEnabled)

	rec := ts.do(http.MethodGet, "/debug/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[DebugStatusResponse](t, rec)
	require.NotNil(t, resp.Pool)
	assert.Equal(t, "pod-test", resp.Pool.PodID)
	assert.True(t, resp.Pool.StoreReachable)
	assert.Zero(t, resp.Pool.ActiveWorkers)
}

func TestDebugStatusEmptyFailureList(t *testing.T) {
	ts := newTestServer(t, debugEnabled)

	rec := ts.do(http.MethodGet, "/debug/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[DebugStatusResponse](t, rec)
	assert.Zero(t, resp.Queued)
	assert.NotNil(t, resp.RecentFailures)
	assert.Empty(t, resp.RecentFailures)
}
