package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// HeaderAdminKey is the header carrying the operator credential
const HeaderAdminKey = "X-Admin-Key"

// AdminAuth guards operator-only routes with a shared key. An empty configured key
// rejects every request so the routes cannot be left open by accident.
func AdminAuth(logger ectologger.Logger, adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminKey == "" {
				logger.WithContext(c.Request().Context()).Warn("admin routes are disabled: no admin key configured")
				return echo.NewHTTPError(http.StatusForbidden, "admin access disabled")
			}

			provided := c.Request().Header.Get(HeaderAdminKey)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
				logger.WithContext(c.Request().Context()).Warn("rejected admin request with bad key")
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}

			return next(c)
		}
	}
}
