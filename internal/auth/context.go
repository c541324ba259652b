// ABOUTME: Authentication context for carrying the logged-in identity through a request
// ABOUTME: Provides WithAuth/FromContext so downstream checks need not reload the session

package auth

import (
	"context"

	"github.com/2389/chartguard/internal/store"
)

// AuthContext holds the authenticated identity for a request. It is populated
// from the session after Authenticate or a session resume.
type AuthContext struct {
	PrincipalID string
	Username    string
	SessionID   string
	Roles       store.Roles
}

// IsAdmin reports whether the identity carries the admin flag.
func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Roles.Admin
}

// NewAuthContext builds an AuthContext from a principal and its session ID.
func NewAuthContext(p *store.Principal, sessionID string) *AuthContext {
	return &AuthContext{
		PrincipalID: p.ID,
		Username:    p.Username,
		SessionID:   sessionID,
		Roles:       p.Roles,
	}
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
