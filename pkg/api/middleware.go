package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware hardening every response. The ingress
// serves webhook acknowledgements and operator JSON, never browser content,
// so framing and device permissions are denied outright.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}
