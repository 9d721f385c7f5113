// ABOUTME: AdminRegistry: the admin set, the freeze state machine and reconciliation
// ABOUTME: Every mutating entry point runs in one store transaction under the registry lock

package whitelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/whitelist-gateway/internal/address"
	"github.com/2389/whitelist-gateway/internal/metrics"
	"github.com/2389/whitelist-gateway/internal/store"
)

// Contract metadata persisted at instantiation.
const (
	ContractName    = "whitelist-gateway"
	ContractVersion = "1.0.0"
)

// Registry owns the admin set and the mutability flag.
//
// Writers hold mu exclusively for the whole store transaction; readers share
// it, so a read never observes a half-applied update even on stores whose
// View is not a snapshot.
type Registry struct {
	store     store.Store
	validator address.Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithValidator replaces the default address.Canonicalizer.
func WithValidator(v address.Validator) Option {
	return func(r *Registry) { r.validator = v }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry over s.
func NewRegistry(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:     s,
		validator: address.NewCanonicalizer(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Validator returns the validator used for every principal.
func (r *Registry) Validator() address.Validator {
	return r.validator
}

// Instantiate validates admins, writes them and the flag, and records
// contract metadata. It fails with ErrAlreadyInstantiated on a second call.
// actor is recorded in the audit log only.
func (r *Registry) Instantiate(ctx context.Context, actor string, admins []string, mutable bool) (*Response, error) {
	start := time.Now()

	principals, err := address.ValidateAll(r.validator, admins)
	if err != nil {
		err = invalidPrincipal(err)
		r.observe(ActionInstantiate, start, err)
		return nil, err
	}
	principals = normalizeTarget(principals)

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.GetContractVersion(ctx)
		if err == nil {
			return ErrAlreadyInstantiated
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("reading contract version: %w", err)
		}

		set := AddressSet{tx: tx}
		for _, p := range principals {
			if err := set.Insert(ctx, p); err != nil {
				return fmt.Errorf("inserting admin: %w", err)
			}
		}
		if err := (MutabilityFlag{tx: tx}).Set(ctx, mutable); err != nil {
			return fmt.Errorf("writing mutable flag: %w", err)
		}
		if err := tx.SetContractVersion(ctx, &store.ContractVersion{
			Contract: ContractName,
			Version:  ContractVersion,
		}); err != nil {
			return fmt.Errorf("writing contract version: %w", err)
		}

		return tx.AppendAuditLog(ctx, &store.AuditEntry{
			Actor:  actor,
			Action: store.AuditInstantiate,
			Detail: map[string]any{
				"admins":  principalStrings(principals),
				"mutable": mutable,
			},
		})
	})
	r.observe(ActionInstantiate, start, err)
	if err != nil {
		return nil, err
	}

	r.metrics.SetAdminState(len(principals), mutable)
	r.logger.Info("registry instantiated", "admins", len(principals), "mutable", mutable)
	return &Response{Attributes: []Attribute{}}, nil
}

// IsAdmin reports whether caller is in the admin set. A caller that fails
// validation is not an admin.
func (r *Registry) IsAdmin(ctx context.Context, caller string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ok bool
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = r.isAdmin(ctx, AddressSet{tx: tx}, caller)
		return err
	})
	return ok, err
}

// ListAdmins returns the admin set ascending and the flag from one snapshot.
func (r *Registry) ListAdmins(ctx context.Context) (*AdminList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := &AdminList{}
	err := r.store.View(ctx, func(tx store.Tx) error {
		admins, err := AddressSet{tx: tx}.List(ctx)
		if err != nil {
			return fmt.Errorf("listing admins: %w", err)
		}
		mutable, err := MutabilityFlag{tx: tx}.Get(ctx)
		if err != nil {
			return err
		}
		list.Admins = principalStrings(admins)
		list.Mutable = mutable
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ContractInfo returns the metadata written by Instantiate.
func (r *Registry) ContractInfo(ctx context.Context) (*ContractInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var info *ContractInfo
	err := r.store.View(ctx, func(tx store.Tx) error {
		v, err := tx.GetContractVersion(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotInstantiated
		}
		if err != nil {
			return fmt.Errorf("reading contract version: %w", err)
		}
		info = &ContractInfo{Contract: v.Contract, Version: v.Version}
		return nil
	})
	return info, err
}

// Instantiated reports whether Instantiate has committed.
func (r *Registry) Instantiated(ctx context.Context) (bool, error) {
	_, err := r.ContractInfo(ctx)
	if errors.Is(err, ErrNotInstantiated) {
		return false, nil
	}
	return err == nil, err
}

// UpdateAdmins replaces the admin set with admins.
//
// Checks run in a fixed order: ErrUnauthorized if caller is not an admin,
// then ErrFrozen if the flag is false, then ErrInvalidPrincipal on the first
// bad entry. Nothing is written unless all three pass.
func (r *Registry) UpdateAdmins(ctx context.Context, caller string, admins []string) (*Response, error) {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var plan Plan
	var size int
	err := r.store.Update(ctx, func(tx store.Tx) error {
		set := AddressSet{tx: tx}
		if err := r.authorize(ctx, set, caller); err != nil {
			return err
		}

		mutable, err := MutabilityFlag{tx: tx}.Get(ctx)
		if err != nil {
			return err
		}
		if !mutable {
			return ErrFrozen
		}

		target, err := address.ValidateAll(r.validator, admins)
		if err != nil {
			return invalidPrincipal(err)
		}
		target = normalizeTarget(target)

		current, err := set.List(ctx)
		if err != nil {
			return fmt.Errorf("listing admins: %w", err)
		}

		plan = reconcile(current, target)
		for _, p := range plan.Remove {
			if err := set.Remove(ctx, p); err != nil {
				return fmt.Errorf("removing admin: %w", err)
			}
		}
		for _, p := range plan.Add {
			if err := set.Insert(ctx, p); err != nil {
				return fmt.Errorf("inserting admin: %w", err)
			}
		}
		size = len(target)

		return tx.AppendAuditLog(ctx, &store.AuditEntry{
			Actor:  callerKey(r.validator, caller),
			Action: store.AuditUpdateAdmins,
			Detail: map[string]any{
				"added":   principalStrings(plan.Add),
				"removed": principalStrings(plan.Remove),
			},
		})
	})
	r.observe(ActionUpdateAdmins, start, err)
	if err != nil {
		return nil, err
	}

	r.metrics.ObserveReconcile(plan.Changes())
	r.metrics.SetAdminState(size, true)
	r.logger.Info("admins updated",
		"action", ActionUpdateAdmins,
		"added", len(plan.Add),
		"removed", len(plan.Remove),
		"admins", size,
	)
	return NewResponse(ActionUpdateAdmins), nil
}

// Freeze clears the mutability flag. Only an admin may freeze; freezing a
// frozen registry succeeds.
func (r *Registry) Freeze(ctx context.Context, caller string) (*Response, error) {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.Update(ctx, func(tx store.Tx) error {
		if err := r.authorize(ctx, AddressSet{tx: tx}, caller); err != nil {
			return err
		}
		if err := (MutabilityFlag{tx: tx}).Set(ctx, false); err != nil {
			return fmt.Errorf("writing mutable flag: %w", err)
		}
		return tx.AppendAuditLog(ctx, &store.AuditEntry{
			Actor:  callerKey(r.validator, caller),
			Action: store.AuditFreeze,
		})
	})
	r.observe(ActionFreeze, start, err)
	if err != nil {
		return nil, err
	}

	r.metrics.SetMutable(false)
	r.logger.Info("admin set frozen", "action", ActionFreeze, "caller", callerKey(r.validator, caller))
	return NewResponse(ActionFreeze), nil
}

// isAdmin canonicalizes caller and looks it up in set.
func (r *Registry) isAdmin(ctx context.Context, set AddressSet, caller string) (bool, error) {
	p, err := r.validator.Validate(caller)
	if err != nil {
		return false, nil
	}
	ok, err := set.Contains(ctx, p)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	return ok, nil
}

// authorize returns ErrUnauthorized unless caller is in set.
func (r *Registry) authorize(ctx context.Context, set AddressSet, caller string) error {
	ok, err := r.isAdmin(ctx, set, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (r *Registry) observe(entrypoint string, start time.Time, err error) {
	r.metrics.ObserveEntrypoint(entrypoint, Outcome(err), start)
}

// Outcome maps an entry-point error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	case errors.Is(err, ErrFrozen):
		return metrics.OutcomeFrozen
	case errors.Is(err, ErrInvalidPrincipal):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

// callerKey is the canonical caller if it validates, else the raw string.
func callerKey(v address.Validator, caller string) string {
	if p, err := v.Validate(caller); err == nil {
		return string(p)
	}
	return caller
}

func principalStrings(ps []address.Principal) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
