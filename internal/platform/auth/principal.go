// Package auth resolves the acting principal for every request and gates
// routes by role. Credential checks happen at the /auth edge; everything
// downstream consumes the already-resolved principal from the context.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles form a closed set. Admin is the only role allowed to read across its
// own organization and declared child organizations.
const (
	RoleAdmin     = "Admin"
	RoleBiller    = "Biller"
	RoleProvider  = "Provider"
	RoleFrontDesk = "FrontDesk"
)

// ValidRoles is the closed role enumeration.
var ValidRoles = map[string]bool{
	RoleAdmin:     true,
	RoleBiller:    true,
	RoleProvider:  true,
	RoleFrontDesk: true,
}

// Principal is the authenticated identity attached to each request.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

// IsAdmin reports whether the principal holds the top administrative role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal placed by the middleware.
// The second return is false when the request was not authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
