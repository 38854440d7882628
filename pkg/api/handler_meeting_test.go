package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meetingHeaders() map[string]string {
	return map[string]string{meetingSecretHeader: testMeetingSecret}
}

func TestMeetingWebhookQueuesCompletedMeeting(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{
		"trigger": "meeting_end",
		"session_id": "sess-1",
		"duration_minutes": 45,
		"attendees": [{"name": "Alice", "email": "alice@acme.example"}]
	}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body, meetingHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[QueuedResponse](t, rec)
	assert.True(t, resp.Queued)
	assert.Equal(t, "meeting_transcript:completed:sess-1", resp.IdempotencyKey)
	assert.Equal(t, int64(1), ts.pendingJobs(t))
}

func TestMeetingWebhookRejectsWrongSecret(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"session_id": "sess-1"}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body,
		map[string]string{meetingSecretHeader: "not-the-secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/webhooks/meetings", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeetingWebhookTooShortNotStaged(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"session_id": "sess-2", "duration_minutes": 4}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body, meetingHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[IgnoredResponse](t, rec)
	assert.True(t, resp.Ignored)
	assert.Equal(t, "too_short", resp.Reason)
	assert.Zero(t, ts.pendingJobs(t))
}

func TestMeetingWebhookDurationFromTimestamps(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{
		"session_id": "sess-3",
		"start_time": "2026-03-12T14:00:00Z",
		"end_time": "2026-03-12T14:05:00Z"
	}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body, meetingHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "too_short", decodeResponse[IgnoredResponse](t, rec).Reason)
}

func TestMeetingWebhookUnknownTriggerIgnored(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"trigger": "meeting_start", "session_id": "sess-4"}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body, meetingHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown_event_type", decodeResponse[IgnoredResponse](t, rec).Reason)
}

func TestMeetingWebhookMissingSessionIDIsBadRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"trigger": "meeting_end", "duration_minutes": 30}`)

	rec := ts.do(http.MethodPost, "/webhooks/meetings", body, meetingHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeetingEnvelopeExternalIDFallbacks(t *testing.T) {
	assert.Equal(t, "s1", (&meetingEnvelope{SessionID: "s1", MeetingID: "m1"}).externalID())
	assert.Equal(t, "m1", (&meetingEnvelope{MeetingID: "m1", ID: "i1"}).externalID())
	assert.Equal(t, "i1", (&meetingEnvelope{ID: "i1"}).externalID())
	assert.Empty(t, (&meetingEnvelope{}).externalID())
}
