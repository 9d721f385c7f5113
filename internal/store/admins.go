// ABOUTME: Admin-set methods for the SQLite transaction
// ABOUTME: Presence-only rows keyed by canonical principal, listed in ascending order

package store

import (
	"context"
	"fmt"
)

// HasAdmin checks if a principal is in the admin set. Returns false for
// unknown principals (not an error).
func (t *sqliteTx) HasAdmin(ctx context.Context, principal string) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admins WHERE principal = ?`, principal,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	return count > 0, nil
}

// ListAdmins returns every admin in ascending byte order. Returns an empty
// slice if the set is empty.
func (t *sqliteTx) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT principal FROM admins ORDER BY principal`)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	defer rows.Close()

	admins := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning admin: %w", err)
		}
		admins = append(admins, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admins: %w", err)
	}
	return admins, nil
}

// AddAdmin adds a principal to the admin set. This operation is idempotent -
// adding an existing admin succeeds silently.
func (t *sqliteTx) AddAdmin(ctx context.Context, principal string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO admins (principal, created_at) VALUES (?, ?)`,
		principal, nowString(),
	)
	if err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}
	return nil
}

// RemoveAdmin removes a principal from the admin set. This operation is
// idempotent - removing a non-member succeeds silently.
func (t *sqliteTx) RemoveAdmin(ctx context.Context, principal string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM admins WHERE principal = ?`, principal)
	if err != nil {
		return fmt.Errorf("removing admin: %w", err)
	}
	return nil
}
