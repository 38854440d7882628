package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// errorHandler renders every handler error as {"detail": "..."} so webhook
// senders see one error shape regardless of which layer rejected them.
func errorHandler(c *echo.Context, err error) {
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		slog.Error("Unhandled request error", "error", err)
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	detail := he.Message
	if err := c.JSON(he.Code, &ErrorResponse{Detail: detail}); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}

// errUnauthorized is the uniform 401. The response never says which check
// failed; the server log carries the detail.
func errUnauthorized() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
}

// mapStagingError maps a staging-pipeline failure to the opaque 500 the
// upstream retries against. Nothing outside the K/V store has happened yet,
// so a redelivery is safe.
func mapStagingError(err error) *echo.HTTPError {
	slog.Error("Staging failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
