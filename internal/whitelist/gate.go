// ABOUTME: AuthorizationGate: flat admin-membership predicate
// ABOUTME: No roles or delegation; a caller is allowed iff it is an admin

package whitelist

import "context"

// Membership answers whether a caller is an admin.
type Membership interface {
	IsAdmin(ctx context.Context, caller string) (bool, error)
}

// Gate decides whether a caller may proceed.
type Gate struct {
	members Membership
}

// NewGate returns a gate backed by m, usually a *Registry.
func NewGate(m Membership) *Gate {
	return &Gate{members: m}
}

// Check reports whether caller is an admin.
func (g *Gate) Check(ctx context.Context, caller string) (bool, error) {
	return g.members.IsAdmin(ctx, caller)
}

// Require returns ErrUnauthorized unless Check approves.
func (g *Gate) Require(ctx context.Context, caller string) error {
	ok, err := g.Check(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
