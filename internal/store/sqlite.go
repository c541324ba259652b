// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Owns the connection, schema creation, and shared row/time helpers

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements every store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements FullStore
var _ FullStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	memory := path == ":memory:"
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// foreign_keys and busy_timeout are per-connection, so they go in the DSN
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if memory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
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
		CREATE TABLE IF NOT EXISTS principals (
			id               TEXT PRIMARY KEY,
			username         TEXT NOT NULL,
			email            TEXT,
			display_name     TEXT NOT NULL,
			password_hash    TEXT NOT NULL,
			is_admin         INTEGER NOT NULL DEFAULT 0,
			is_provider      INTEGER NOT NULL DEFAULT 0,
			is_supervisor    INTEGER NOT NULL DEFAULT 0,
			is_social_worker INTEGER NOT NULL DEFAULT 0,
			is_active        INTEGER NOT NULL DEFAULT 1,
			failed_attempts  INTEGER NOT NULL DEFAULT 0,
			locked_until     TEXT,
			last_login       TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			deleted_at       TEXT
		);

		-- uniqueness only binds live accounts; soft-deleted rows keep their names
		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_username_live
			ON principals(username) WHERE deleted_at IS NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_email_live
			ON principals(email) WHERE deleted_at IS NULL AND email IS NOT NULL;

		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			principal_id  TEXT,
			payload       BLOB NOT NULL,
			created_at    TEXT NOT NULL,
			last_activity TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_principal ON sessions(principal_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity);

		CREATE TABLE IF NOT EXISTS clients (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS client_assignments (
			id          TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL REFERENCES principals(id),
			client_id   TEXT NOT NULL REFERENCES clients(id),
			role_label  TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			ended_at    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_assignments_provider ON client_assignments(provider_id, client_id);
		CREATE INDEX IF NOT EXISTS idx_assignments_client ON client_assignments(client_id);

		CREATE TABLE IF NOT EXISTS supervision_edges (
			id            TEXT PRIMARY KEY,
			supervisor_id TEXT NOT NULL REFERENCES principals(id),
			supervisee_id TEXT NOT NULL REFERENCES principals(id),
			started_at    TEXT NOT NULL,
			ended_at      TEXT,

			CHECK (supervisor_id <> supervisee_id)
		);

		CREATE INDEX IF NOT EXISTS idx_supervision_supervisor ON supervision_edges(supervisor_id);
		CREATE INDEX IF NOT EXISTS idx_supervision_supervisee ON supervision_edges(supervisee_id);

		CREATE TABLE IF NOT EXISTS audit_log (
			id             TEXT PRIMARY KEY,
			actor_id       TEXT,
			action         TEXT NOT NULL,
			resource_type  TEXT NOT NULL,
			resource_id    TEXT,
			detail_json    TEXT,
			origin_address TEXT,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);

		CREATE TRIGGER IF NOT EXISTS audit_log_no_update
			BEFORE UPDATE ON audit_log
			BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;

		CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
			BEFORE DELETE ON audit_log
			BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// formatTime renders t in the fixed-width UTC layout used by every column.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// FormatTime renders t as stored in time columns. Conditions that compare
// against those columns must bind values in this form.
func FormatTime(t time.Time) string {
	return formatTime(t)
}

// parseTime parses a column written by formatTime.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullTime returns nil for a nil time, otherwise the formatted value
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseNullTime parses an optional time column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolInt maps a bool onto SQLite's integer booleans.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// wrapErr annotates err, mapping a closed database onto ErrUnavailable.
func wrapErr(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
