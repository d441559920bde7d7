package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: infrastructure probes and login.
var publicPaths = map[string]bool{
	"/health":            true,
	"/ready":             true,
	"/metrics":           true,
	"/api/v1/auth/login": true,
}

// AuthSkipper matches on the route pattern, so it only applies after routing.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
