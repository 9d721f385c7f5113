// ABOUTME: Store interface and data types for whitelist-gateway persistence
// ABOUTME: Defines the transactional Tx surface used by the admin registry

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a transaction lost a race with a concurrent writer
var ErrConflict = errors.New("concurrent modification")

// ContractVersion identifies the software that instantiated the stored state.
type ContractVersion struct {
	Contract string
	Version  string
}

// Tx is the storage surface available inside a View or Update callback.
//
// Admin keys are stored verbatim; callers pass canonical principals and
// get them back in ascending byte order from ListAdmins.
type Tx interface {
	// Admin set
	HasAdmin(ctx context.Context, principal string) (bool, error)
	ListAdmins(ctx context.Context) ([]string, error)
	AddAdmin(ctx context.Context, principal string) error
	RemoveAdmin(ctx context.Context, principal string) error

	// Mutability flag. GetMutable returns ErrNotFound before instantiation.
	GetMutable(ctx context.Context) (bool, error)
	SetMutable(ctx context.Context, mutable bool) error

	// Contract metadata. GetContractVersion returns ErrNotFound before instantiation.
	GetContractVersion(ctx context.Context) (*ContractVersion, error)
	SetContractVersion(ctx context.Context, v *ContractVersion) error

	// Audit
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
}

// Store persists the admin set, the mutability flag, contract metadata and
// the audit log.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction. If fn returns an error
	// nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// ListAuditLog returns audit entries newest first.
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	// Close releases any resources held by the store
	Close() error
}
