// ABOUTME: AddressSet and MutabilityFlag views over a store transaction
// ABOUTME: Both are bound to one Tx and live only as long as it does

package whitelist

import (
	"context"
	"errors"

	"github.com/2389/whitelist-gateway/internal/address"
	"github.com/2389/whitelist-gateway/internal/store"
)

// AddressSet is the ordered, presence-only admin set.
type AddressSet struct {
	tx store.Tx
}

// Contains reports whether p is a member.
func (s AddressSet) Contains(ctx context.Context, p address.Principal) (bool, error) {
	return s.tx.HasAdmin(ctx, string(p))
}

// List returns every member in ascending order.
func (s AddressSet) List(ctx context.Context) ([]address.Principal, error) {
	raw, err := s.tx.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]address.Principal, len(raw))
	for i, r := range raw {
		out[i] = address.Principal(r)
	}
	return out, nil
}

// Insert adds p. Inserting a member is a no-op.
func (s AddressSet) Insert(ctx context.Context, p address.Principal) error {
	return s.tx.AddAdmin(ctx, string(p))
}

// Remove deletes p. Removing a non-member is a no-op.
func (s AddressSet) Remove(ctx context.Context, p address.Principal) error {
	return s.tx.RemoveAdmin(ctx, string(p))
}

// MutabilityFlag is the persisted bool gating admin-set changes.
type MutabilityFlag struct {
	tx store.Tx
}

// Get returns the flag, or ErrNotInstantiated if it was never written.
func (f MutabilityFlag) Get(ctx context.Context) (bool, error) {
	mutable, err := f.tx.GetMutable(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrNotInstantiated
	}
	return mutable, err
}

// Set writes v unconditionally. Callers enforce the one-way rule.
func (f MutabilityFlag) Set(ctx context.Context, v bool) error {
	return f.tx.SetMutable(ctx, v)
}
