package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
)

// HeaderTOTP carries the one-time code for guarded endpoints.
const HeaderTOTP = "X-TOTP"

// TOTPGuard rejects requests without a valid current code. An empty secret
// disables the guard.
func TOTPGuard(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			code := strings.TrimSpace(c.Request().Header.Get(HeaderTOTP))
			if code == "" || !totp.Validate(code, secret) {
				return UnauthorizedResponse(c, "missing or invalid "+HeaderTOTP+" code")
			}
			return next(c)
		}
	}
}
