package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// supportSignatureHeader carries the timestamped HMAC of the raw body.
const supportSignatureHeader = "Support-Signature"

// supportWebhookHandler handles POST /webhooks/support.
//
// The support tool posts every topic to a single URL; only tag additions
// and company updates are staged. Tag additions are pre-filtered against
// QUALIFYING_TAGS so routine tagging noise never reaches the queue.
func (s *Server) supportWebhookHandler(c *echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := s.supportVerifier.Verify(c.Request().Header.Get(supportSignatureHeader), body); err != nil {
		s.logger.Warn("Support webhook rejected", "error", err)
		return errUnauthorized()
	}

	var env supportEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	switch env.Topic {
	case "contact.lead.tag.created", "contact.user.tag.created":
		return s.stageSupportTag(c, &env, body)
	case "company.updated":
		return s.stageSupportCompany(c, &env, body)
	default:
		s.logger.Info("Support topic not handled", "topic", env.Topic)
		return c.JSON(http.StatusOK, &IgnoredResponse{OK: true, Ignored: true, Reason: "unknown_event_type"})
	}
}

func (s *Server) stageSupportTag(c *echo.Context, env *supportEnvelope, body []byte) error {
	if !s.cfg.IsQualifyingTag(env.Data.Item.Tag.Name) {
		s.logger.Info("Support tag not qualifying", "tag", env.Data.Item.Tag.Name)
		return c.JSON(http.StatusOK, &IgnoredResponse{OK: true, Ignored: true, Reason: "tag_not_qualifying"})
	}

	contactID := env.Data.Item.Contact.ID
	if contactID == "" {
		contactID = env.Data.Item.ID
	}
	if contactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload has no contact identifier")
	}

	// The same tag can be removed and re-added later; folding the creation
	// time into the id keeps distinct additions distinct.
	externalID := contactID + ":" + strconv.FormatInt(env.Data.Item.CreatedAt, 10)
	return s.stage(c, pipeline.SourceSupportTag, "tag_added", externalID, body)
}

func (s *Server) stageSupportCompany(c *echo.Context, env *supportEnvelope, body []byte) error {
	companyID := env.Data.Item.ID
	if companyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload has no company identifier")
	}

	ts := env.Data.Item.UpdatedAt
	if ts == 0 {
		ts = env.Data.Item.CreatedAt
	}
	externalID := companyID + ":" + strconv.FormatInt(ts, 10)
	return s.stage(c, pipeline.SourceSupportCo, "company_updated", externalID, body)
}
