// README: Authenticated caller identity and the role capability check.
package types

import "ridehail/internal/errs"

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Actor is the caller of a core operation, already authenticated upstream.
type Actor struct {
	ID   ID
	Role Role
}

// RequireRole fails with an UNAUTHORIZED error unless the actor holds one of roles.
func RequireRole(a Actor, roles ...Role) error {
	if a.ID == "" {
		return errs.New(errs.CodeUnauthorized, "missing actor")
	}
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return errs.Newf(errs.CodeUnauthorized, "role %q not allowed", a.Role)
}
