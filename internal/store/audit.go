// ABOUTME: Audit log entity and SQLite methods for tracking registry and proxy actions
// ABOUTME: Records who triggered which entry point, with per-action detail

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditInstantiate  AuditAction = "instantiate"
	AuditUpdateAdmins AuditAction = "update_admins"
	AuditFreeze       AuditAction = "freeze"
	AuditExecute      AuditAction = "execute"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditInstantiate,
	AuditUpdateAdmins,
	AuditFreeze,
	AuditExecute,
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string         // UUID v4
	Actor     string         // principal that called the entry point ("" for instantiate)
	Action    AuditAction    // entry point that succeeded
	Timestamp time.Time      // when it happened
	Detail    map[string]any // additional context (max 64KB JSON)
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since  *time.Time   // entries after this time
	Until  *time.Time   // entries before this time
	Actor  *string      // filter by actor
	Action *AuditAction // filter by action type
	Limit  int          // max results (default 100, max 1000)
}

// maxAuditDetailBytes caps the serialized detail of one entry.
const maxAuditDetailBytes = 64 * 1024

// prepareAuditEntry fills in ID and Timestamp and serializes Detail.
func prepareAuditEntry(e *AuditEntry) (*string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if e.Detail == nil {
		return nil, nil
	}
	data, err := json.Marshal(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit detail: %w", err)
	}
	if len(data) > maxAuditDetailBytes {
		return nil, fmt.Errorf("audit detail is %d bytes, limit is %d", len(data), maxAuditDetailBytes)
	}
	str := string(data)
	return &str, nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// matches reports whether e passes every filter criterion except Limit.
func (f AuditFilter) matches(e *AuditEntry) bool {
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.Actor != nil && e.Actor != *f.Actor {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	return true
}

// appendAuditLog inserts an entry using the given executor (db or tx).
func appendAuditLog(ctx context.Context, x execer, e *AuditEntry) error {
	detailJSON, err := prepareAuditEntry(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (audit_id, actor, action, ts, detail_json)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = x.ExecContext(ctx, query,
		e.ID,
		e.Actor,
		e.Action,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableTime formats t for comparison in SQL, or returns nil for an open bound.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var (
		e      AuditEntry
		action string
		ts     string
		detail sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Actor, &action, &ts, &detail); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Action = AuditAction(action)

	var err error
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return e, fmt.Errorf("audit entry %s: bad timestamp %q: %w", e.ID, ts, err)
	}
	if detail.Valid {
		if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
			return e, fmt.Errorf("audit entry %s: bad detail: %w", e.ID, err)
		}
	}
	return e, nil
}

// Numbered parameters let each filter value serve both the IS NULL test
// and the comparison.
// ts is RFC3339Nano and does not sort as text, so order by insertion sequence.
const auditLogQuery = `
	SELECT audit_id, actor, action, ts, detail_json
	FROM audit_log
	WHERE (?1 IS NULL OR julianday(ts) >= julianday(?1))
	  AND (?2 IS NULL OR julianday(ts) <= julianday(?2))
	  AND (?3 IS NULL OR actor = ?3)
	  AND (?4 IS NULL OR action = ?4)
	ORDER BY seq DESC
	LIMIT ?5
`

// ListAuditLog returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		nullableTime(f.Since),
		nullableTime(f.Until),
		nullableString(f.Actor),
		nullableString(f.Action),
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
