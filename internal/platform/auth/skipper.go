package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes that bypass authentication: infrastructure health checks
// and the endpoints used to obtain a token in the first place.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/metrics":           true,
	"/api/auth/login":    true,
	"/api/auth/register": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches on the registered route path.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
