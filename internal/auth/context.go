// ABOUTME: Request-scoped sender identity shared by HTTP and gRPC handlers
// ABOUTME: WithAuth stores it, FromContext and MustFromContext read it back

package auth

import (
	"context"
)

// How a sender was identified.
const (
	MethodToken  = "token"
	MethodHeader = "header"
)

// AuthContext is the identity attached to an authenticated request.
type AuthContext struct {
	Sender string // principal string as presented; canonicalized by the registry
	Method string // MethodToken or MethodHeader
}

type ctxKey struct{}

// WithAuth attaches ac to ctx.
func WithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext returns the identity on ctx, or nil when the request was not
// authenticated.
func FromContext(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(ctxKey{}).(*AuthContext)
	return ac
}

// MustFromContext is FromContext for handlers mounted behind the auth
// middleware. It panics when no identity is present.
func MustFromContext(ctx context.Context) *AuthContext {
	if ac := FromContext(ctx); ac != nil {
		return ac
	}
	panic("auth: no AuthContext on request context")
}
