package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Platform roles. Radiologists and referring doctors are clinicians; admins
// and lab admins are administrative actors who may author reports on an
// assigned clinician's behalf.
const (
	RoleAdmin           = "admin"
	RoleLabAdmin        = "lab_admin"
	RoleRadiologist     = "radiologist"
	RoleReferringDoctor = "referring_doctor"
	RoleTechnologist    = "technologist"
	RoleVerifier        = "verifier"
)

// RequireRole returns middleware that checks if the user holds one of the
// specified roles. Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
