// ABOUTME: Error taxonomy for the admin registry and execution proxy
// ABOUTME: Sentinels are matched with errors.Is at the transport boundary

package whitelist

import (
	"errors"

	"github.com/2389/whitelist-gateway/internal/address"
)

var (
	// ErrUnauthorized means the caller is not a current admin.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrFrozen means an admin-set change was attempted after freeze.
	ErrFrozen = errors.New("admin set is frozen")

	// ErrInvalidPrincipal means an input identity failed validation.
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrAlreadyInstantiated is returned by a second Instantiate.
	ErrAlreadyInstantiated = errors.New("already instantiated")

	// ErrNotInstantiated is returned by reads that need contract state.
	ErrNotInstantiated = errors.New("not instantiated")
)

// InvalidPrincipalError carries the rejected input. It matches both
// ErrInvalidPrincipal and address.ErrInvalid.
type InvalidPrincipalError struct {
	Input string
	Err   error
}

func (e *InvalidPrincipalError) Error() string {
	return e.Err.Error()
}

func (e *InvalidPrincipalError) Unwrap() error { return e.Err }

func (e *InvalidPrincipalError) Is(target error) bool {
	return target == ErrInvalidPrincipal
}

// invalidPrincipal wraps a validator failure.
func invalidPrincipal(err error) error {
	var ie *address.InvalidError
	if errors.As(err, &ie) {
		return &InvalidPrincipalError{Input: ie.Input, Err: err}
	}
	return &InvalidPrincipalError{Err: err}
}
