package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentcore/pkg/authjwt"
)

// securityHeaders sets standard security response headers on every response.
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

// principalKey is the echo.Context key the auth middleware stores the
// verified Principal under.
const principalKey = "principal"

// requireAuth verifies the Authorization header and stores the resulting
// authjwt.Principal on the request context for handlers to read.
func requireAuth(verifier *authjwt.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			principal, err := verifier.Verify(c.Request().Header.Get("Authorization"))
			if err != nil {
				return writeError(c, err)
			}
			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

func principalFrom(c *echo.Context) authjwt.Principal {
	p, _ := c.Get(principalKey).(authjwt.Principal)
	return p
}
