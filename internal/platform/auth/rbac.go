package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequirePermission rejects callers that do not hold perm.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, err := CallerFrom(c)
			if err != nil {
				return err
			}
			if !caller.Has(perm) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required permission: %s", perm))
			}
			return next(c)
		}
	}
}
