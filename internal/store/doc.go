// Package store persists the whitelist state: the admin set, the mutability
// flag, contract metadata and the audit log.
//
// # Architecture
//
// All state changes happen inside a transaction callback:
//
//	err := s.Update(ctx, func(tx store.Tx) error {
//		if err := tx.RemoveAdmin(ctx, "alice"); err != nil {
//			return err
//		}
//		return tx.AddAdmin(ctx, "bob")
//	})
//
// If the callback returns an error nothing it wrote is kept. View runs a
// read-only callback; writes inside it fail with ErrReadOnly.
//
// Three implementations are provided:
//
//   - SQLiteStore: modernc.org/sqlite, WAL mode, schema created on open
//   - RedisStore: go-redis, admins in a score-0 ZSET, WATCH/MULTI updates
//   - MockStore: in-memory, copy-on-write, with error injection for tests
//
// # Ordering
//
// ListAdmins always returns principals in ascending byte order. The admin
// registry relies on this for its merge-based reconciliation.
//
// # Error Handling
//
//   - ErrNotFound: mutability flag or contract metadata not yet written
//   - ErrReadOnly: write attempted inside View
//   - ErrConflict: Redis transaction lost its WATCH race too many times
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore(":memory:") or a
// t.TempDir() path for tests against real SQLite. RedisStore tests run under
// the integration build tag with testcontainers.
package store
