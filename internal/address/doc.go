// Package address canonicalizes and validates principal identifiers.
//
// A Principal is the canonical string form of a caller identity. Every
// principal that reaches the admin set has passed through a Validator, so
// equality and ordering on Principal values are plain string comparisons:
//
//	v := address.NewCanonicalizer()
//	p, err := v.Validate("  Alice ")
//	// p == "alice"
//
// Validation failures are reported as *InvalidError, which matches
// ErrInvalid under errors.Is and carries the rejected input.
package address
