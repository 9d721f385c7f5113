// Package whitelist implements the admin registry and the authorization gate.
//
// The Registry keeps a set of admin principals and a one-way mutability
// flag. Admins may replace the set (UpdateAdmins) until any admin freezes
// it (Freeze); after that every UpdateAdmins fails with ErrFrozen.
//
// UpdateAdmins checks, in order: caller is an admin (ErrUnauthorized),
// registry is mutable (ErrFrozen), every new entry validates
// (ErrInvalidPrincipal). A non-admin calling UpdateAdmins on a frozen
// registry therefore sees ErrUnauthorized.
//
// Replacing the set is a single ascending merge of the current members
// against the sorted target, see reconcile.
//
// Gate wraps any Membership, normally the Registry, and is what the
// execution proxy consults.
package whitelist
