package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiPolicy     = "default-src 'none'; frame-ancestors 'none'"
	previewPolicy = "default-src 'none'; img-src 'self'; media-src 'self'; object-src 'self'; frame-ancestors 'self'"
	hstsValue     = "max-age=31536000; includeSubDomains"
)

// SecurityHeadersConfig selects the per-deployment parts of the header set.
type SecurityHeadersConfig struct {
	// HSTS is only sent when the server sits behind TLS.
	HSTS bool
	// PreviewSuffix marks routes that render an uploaded document inline.
	// The web client frames those, so they get a same-origin policy.
	PreviewSuffix string
}

// SecurityHeaders hardens API responses. Socket upgrades pass through
// untouched since the upgrader writes its own handshake.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if isSocketPath(path) {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// Case data must not linger in shared or browser caches.
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")

			if cfg.PreviewSuffix != "" && strings.HasSuffix(path, cfg.PreviewSuffix) {
				h.Set("X-Frame-Options", "SAMEORIGIN")
				h.Set("Content-Security-Policy", previewPolicy)
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", apiPolicy)
			}
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}
