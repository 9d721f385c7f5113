// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides transactional admin-set persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Write transactions take the reserved lock up front so two writers
	// never deadlock upgrading from a shared lock.
	db, err := sql.Open("sqlite", path+"?_txlock=immediate&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS admins (
			principal  TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS contract_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,

			CHECK (key IN ('mutable', 'contract', 'version'))
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id    TEXT NOT NULL UNIQUE,
			actor       TEXT NOT NULL,
			action      TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT,

			CHECK (action IN (
				'instantiate',
				'update_admins',
				'freeze',
				'execute'
			))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// View runs fn inside a read-only transaction.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.runTx(ctx, true, fn)
}

// Update runs fn inside a write transaction and commits only if fn succeeds.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.runTx(ctx, false, fn)
}

func (s *SQLiteStore) runTx(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&sqliteTx{tx: sqlTx, readOnly: readOnly}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// sqliteTx implements Tx on top of a database/sql transaction.
type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// getState reads a contract_state value, returning ErrNotFound if absent.
func (t *sqliteTx) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM contract_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// setState upserts a contract_state value.
func (t *sqliteTx) setState(ctx context.Context, key, value string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contract_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// GetMutable returns the stored mutability flag.
func (t *sqliteTx) GetMutable(ctx context.Context) (bool, error) {
	value, err := t.getState(ctx, "mutable")
	if err != nil {
		return false, err
	}
	mutable, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parsing mutable flag %q: %w", value, err)
	}
	return mutable, nil
}

// SetMutable overwrites the mutability flag.
func (t *sqliteTx) SetMutable(ctx context.Context, mutable bool) error {
	return t.setState(ctx, "mutable", strconv.FormatBool(mutable))
}

// GetContractVersion returns the metadata written at instantiation.
func (t *sqliteTx) GetContractVersion(ctx context.Context) (*ContractVersion, error) {
	contract, err := t.getState(ctx, "contract")
	if err != nil {
		return nil, err
	}
	version, err := t.getState(ctx, "version")
	if err != nil {
		return nil, err
	}
	return &ContractVersion{Contract: contract, Version: version}, nil
}

// SetContractVersion records contract name and version.
func (t *sqliteTx) SetContractVersion(ctx context.Context, v *ContractVersion) error {
	if err := t.setState(ctx, "contract", v.Contract); err != nil {
		return err
	}
	return t.setState(ctx, "version", v.Version)
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (t *sqliteTx) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	return appendAuditLog(ctx, t.tx, e)
}

// nowString formats the current time the way every table stores it.
func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}
