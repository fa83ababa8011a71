package auth

import (
	"context"

	"tucomercio/internal/models"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   models.Role
}

func (p Principal) IsSuperAdmin() bool { return p.Role == models.RoleSuperAdmin }

func (p Principal) IsZero() bool { return p.UserID == "" }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && !p.IsZero()
}
