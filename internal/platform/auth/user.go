package auth

import (
	"context"

	"github.com/raypacs/raypacs/internal/platform/db"
)

// User is the acting user every core operation receives. The core never
// authenticates; it only authorizes by comparing tenant and role.
type User struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	FullName string `json:"full_name"`
}

// UserFromContext assembles the acting user from the values the auth and
// tenant middleware stashed in the request context.
func UserFromContext(ctx context.Context) User {
	return User{
		ID:       UserIDFromContext(ctx),
		Role:     RoleFromContext(ctx),
		TenantID: db.TenantFromContext(ctx),
		FullName: NameFromContext(ctx),
	}
}

// IsClinician reports whether the user signs reports in their own name.
func (u User) IsClinician() bool {
	return u.Role == RoleRadiologist || u.Role == RoleReferringDoctor
}

// IsAdministrative reports whether the user acts on behalf of an assigned
// clinician when authoring reports.
func (u User) IsAdministrative() bool {
	return u.Role == RoleAdmin || u.Role == RoleLabAdmin
}

// IsElevated reports whether the user may perform cross-organization
// operations such as study replication.
func (u User) IsElevated() bool {
	return u.Role == RoleAdmin
}
