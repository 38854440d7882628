package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/signature"
)

const supportTagBody = `{
	"topic": "contact.lead.tag.created",
	"data": {
		"item": {
			"id": "tag-evt-1",
			"created_at": 1773655200,
			"tag": {"name": "Qualified"},
			"contact": {"id": "c-100", "email": "alice@acme.example"}
		}
	}
}`

func TestSupportWebhookQualifyingTagQueued(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/webhooks/support", []byte(supportTagBody), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[QueuedResponse](t, rec)
	assert.True(t, resp.Queued)
	assert.Equal(t, "support_tag:tag_added:c-100:1773655200", resp.IdempotencyKey)
}

func TestSupportWebhookNonQualifyingTagIgnored(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{
		"topic": "contact.user.tag.created",
		"data": {"item": {"id": "tag-evt-2", "tag": {"name": "beta-tester"}, "contact": {"id": "c-101"}}}
	}`)

	rec := ts.do(http.MethodPost, "/webhooks/support", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[IgnoredResponse](t, rec)
	assert.Equal(t, "tag_not_qualifying", resp.Reason)
	assert.Zero(t, ts.pendingJobs(t))
}

func TestSupportWebhookCompanyUpdatedQueued(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{
		"topic": "company.updated",
		"data": {"item": {"id": "co-7", "updated_at": 1773655300, "custom_attributes": {"team_size": 25}}}
	}`)

	rec := ts.do(http.MethodPost, "/webhooks/support", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[QueuedResponse](t, rec)
	assert.Equal(t, "support_company:company_updated:co-7:1773655300", resp.IdempotencyKey)
}

func TestSupportWebhookUnknownTopicIgnored(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"topic": "conversation.user.created", "data": {"item": {"id": "x"}}}`)

	rec := ts.do(http.MethodPost, "/webhooks/support", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown_event_type", decodeResponse[IgnoredResponse](t, rec).Reason)
}

func TestSupportWebhookSignatureEnforcedWhenConfigured(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.SupportWebhookSecret = "support-secret"
	})
	body := []byte(supportTagBody)

	rec := ts.do(http.MethodPost, "/webhooks/support", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/webhooks/support", body, map[string]string{
		supportSignatureHeader: signature.Sign("support-secret", time.Now(), body),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse[QueuedResponse](t, rec).Queued)
}

func TestSupportWebhookMissingContactIDIsBadRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	body := []byte(`{"topic": "contact.lead.tag.created", "data": {"item": {"tag": {"name": "Lead"}}}}`)

	rec := ts.do(http.MethodPost, "/webhooks/support", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
