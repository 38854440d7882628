package api

import (
	"encoding/json"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// enrichSecretHeader carries the API key of internal callers.
const enrichSecretHeader = "X-Enrich-Secret"

// enrichLeadHandler handles POST /enrich/lead.
//
// Manual enrichment is an internal API, not a third-party webhook; callers
// authenticate with a static key. The lowercased email is the external id,
// so re-requesting enrichment for the same address within the idempotency
// TTL is a duplicate.
func (s *Server) enrichLeadHandler(c *echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := s.enrichVerifier.Verify(c.Request().Header.Get(enrichSecretHeader), body); err != nil {
		s.logger.Warn("Enrich request rejected", "error", err)
		return errUnauthorized()
	}

	var req enrichRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "a valid email is required")
	}

	return s.stage(c, pipeline.SourceManualEnrich, "enrich_request", email, body)
}
