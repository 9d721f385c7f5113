// ABOUTME: Principal type and the Validator that turns raw strings into principals
// ABOUTME: Canonical form is NFKC, trimmed and lower-cased; ordering is lexicographic

package address

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid principal")

// InvalidError reports which input failed validation and why.
type InvalidError struct {
	Input  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid principal %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Principal is a canonicalized identity string.
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// Compare orders principals lexicographically over their canonical form.
func (p Principal) Compare(other Principal) int {
	return strings.Compare(string(p), string(other))
}

// Validator canonicalizes a raw identity string or rejects it.
type Validator interface {
	Validate(raw string) (Principal, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(raw string) (Principal, error)

// Validate calls f(raw).
func (f ValidatorFunc) Validate(raw string) (Principal, error) { return f(raw) }

// Default length bounds for canonical principals.
const (
	DefaultMinLength = 3
	DefaultMaxLength = 90
)

// allowedPunct lists the non-alphanumeric runes a principal may contain.
const allowedPunct = "-_.:@/"

// Canonicalizer is the default Validator.
type Canonicalizer struct {
	MinLength int
	MaxLength int
}

// NewCanonicalizer returns a Canonicalizer with the default bounds.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{
		MinLength: DefaultMinLength,
		MaxLength: DefaultMaxLength,
	}
}

// Canonical returns the canonical form of raw without validating it.
func Canonical(raw string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(raw)))
}

// Validate canonicalizes raw and checks length and character set.
func (c *Canonicalizer) Validate(raw string) (Principal, error) {
	s := Canonical(raw)

	if s == "" {
		return "", &InvalidError{Input: raw, Reason: "empty"}
	}

	n := utf8.RuneCountInString(s)
	if c.MinLength > 0 && n < c.MinLength {
		return "", &InvalidError{Input: raw, Reason: fmt.Sprintf("shorter than %d characters", c.MinLength)}
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		return "", &InvalidError{Input: raw, Reason: fmt.Sprintf("longer than %d characters", c.MaxLength)}
	}

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(allowedPunct, r) {
			continue
		}
		return "", &InvalidError{Input: raw, Reason: fmt.Sprintf("contains %q", r)}
	}

	return Principal(s), nil
}

// ValidateAll validates every input in order and stops at the first failure.
func ValidateAll(v Validator, raws []string) ([]Principal, error) {
	out := make([]Principal, 0, len(raws))
	for _, raw := range raws {
		p, err := v.Validate(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
