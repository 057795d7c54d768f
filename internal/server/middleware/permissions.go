package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	PermRunCreate = "run.create"
	PermRunView   = "run.view"
)

var allPermissions = []string{
	PermRunCreate,
	PermRunView,
}

// HasPermission reports whether user holds permission, either directly or
// through a wildcard such as "run.*".
func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	for _, p := range user.Permissions {
		if p == permission {
			return true
		}
		if scope, ok := strings.CutSuffix(p, ".*"); ok && strings.HasPrefix(permission, scope+".") {
			return true
		}
	}
	return false
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			if !HasPermission(user, permission) {
				return echo.NewHTTPError(http.StatusForbidden, "missing permission "+permission)
			}
			return next(c)
		}
	}
}
