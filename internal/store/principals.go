// ABOUTME: Principal (staff account) store methods for SQLite
// ABOUTME: Covers provisioning, role flags, soft deletion, and lockout bookkeeping

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ensure SQLiteStore implements PrincipalStore.
var _ PrincipalStore = (*SQLiteStore)(nil)

const principalColumns = `
	id, username, email, display_name, password_hash,
	is_admin, is_provider, is_supervisor, is_social_worker, is_active,
	failed_attempts, locked_until, last_login, created_at, updated_at, deleted_at
`

// scanPrincipal scans a row selected with principalColumns.
func scanPrincipal(row rowScanner) (*Principal, error) {
	var p Principal
	var email, lockedUntil, lastLogin, deletedAt sql.NullString
	var admin, provider, supervisor, socialWorker, active int
	var createdAtStr, updatedAtStr string

	if err := row.Scan(
		&p.ID, &p.Username, &email, &p.DisplayName, &p.PasswordHash,
		&admin, &provider, &supervisor, &socialWorker, &active,
		&p.FailedAttempts, &lockedUntil, &lastLogin, &createdAtStr, &updatedAtStr, &deletedAt,
	); err != nil {
		return nil, err
	}

	p.Email = email.String
	p.Roles = Roles{
		Admin:        admin != 0,
		Provider:     provider != 0,
		Supervisor:   supervisor != 0,
		SocialWorker: socialWorker != 0,
	}
	p.Active = active != 0

	var err error
	if p.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if p.LockedUntil, err = parseNullTime(lockedUntil); err != nil {
		return nil, fmt.Errorf("parsing locked_until: %w", err)
	}
	if p.LastLogin, err = parseNullTime(lastLogin); err != nil {
		return nil, fmt.Errorf("parsing last_login: %w", err)
	}
	if p.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	return &p, nil
}

// CreatePrincipal inserts a principal. Uniqueness of username and email among
// live principals is checked inside the same transaction as the insert.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM principals WHERE username = ? AND deleted_at IS NULL`, p.Username).Scan(&exists)
	if err == nil {
		return ErrUsernameExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapErr("checking username", err)
	}

	if p.Email != "" {
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM principals WHERE email = ? AND deleted_at IS NULL`, p.Email).Scan(&exists)
		if err == nil {
			return ErrEmailExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return wrapErr("checking email", err)
		}
	}

	query := `
		INSERT INTO principals (
			id, username, email, display_name, password_hash,
			is_admin, is_provider, is_supervisor, is_social_worker, is_active,
			failed_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		p.ID,
		p.Username,
		nullString(p.Email),
		p.DisplayName,
		p.PasswordHash,
		boolInt(p.Roles.Admin),
		boolInt(p.Roles.Provider),
		boolInt(p.Roles.Supervisor),
		boolInt(p.Roles.SocialWorker),
		boolInt(p.Active),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return wrapErr("inserting principal", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("committing principal", err)
	}

	s.logger.Info("created principal", "id", p.ID, "username", p.Username)
	return nil
}

// GetPrincipal retrieves a live principal by ID.
// Returns ErrPrincipalNotFound if it doesn't exist or is soft-deleted.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	return s.getPrincipalWhere(ctx, "id = ?", id)
}

// GetPrincipalByUsername retrieves a live principal by username.
func (s *SQLiteStore) GetPrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	return s.getPrincipalWhere(ctx, "username = ?", username)
}

// GetPrincipalByEmail retrieves a live principal by email.
func (s *SQLiteStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return s.getPrincipalWhere(ctx, "email = ?", email)
}

func (s *SQLiteStore) getPrincipalWhere(ctx context.Context, where string, arg any) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE ` + where + ` AND deleted_at IS NULL`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, wrapErr("querying principal", err)
	}
	return p, nil
}

// ListPrincipals returns all live principals ordered by username.
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE deleted_at IS NULL ORDER BY username ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("querying principals", err)
	}
	defer func() { _ = rows.Close() }()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}

// UpdatePrincipalProfile changes email and display name.
func (s *SQLiteStore) UpdatePrincipalProfile(ctx context.Context, id, email, displayName string) error {
	err := s.execPrincipal(ctx, "updating principal profile",
		`UPDATE principals SET email = ?, display_name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		nullString(email), displayName, formatTime(time.Now()), id)
	if err != nil && isUniqueConstraintError(err) {
		return ErrEmailExists
	}
	return err
}

// SetPrincipalRoles replaces all four role flags.
func (s *SQLiteStore) SetPrincipalRoles(ctx context.Context, id string, roles Roles) error {
	return s.execPrincipal(ctx, "updating principal roles", `
		UPDATE principals
		SET is_admin = ?, is_provider = ?, is_supervisor = ?, is_social_worker = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, boolInt(roles.Admin), boolInt(roles.Provider), boolInt(roles.Supervisor), boolInt(roles.SocialWorker),
		formatTime(time.Now()), id)
}

// SetPrincipalActive activates or deactivates a principal.
func (s *SQLiteStore) SetPrincipalActive(ctx context.Context, id string, active bool) error {
	return s.execPrincipal(ctx, "updating principal active flag",
		`UPDATE principals SET is_active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		boolInt(active), formatTime(time.Now()), id)
}

// SoftDeletePrincipal marks a principal deleted. The row is kept.
func (s *SQLiteStore) SoftDeletePrincipal(ctx context.Context, id string, at time.Time) error {
	return s.execPrincipal(ctx, "soft-deleting principal",
		`UPDATE principals SET deleted_at = ?, is_active = 0, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(at), id)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execPrincipal(ctx, "updating password hash",
		`UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		hash, formatTime(time.Now()), id)
}

// ResetPassword replaces the password hash and clears lockout state in a single statement.
func (s *SQLiteStore) ResetPassword(ctx context.Context, id, hash string) error {
	return s.execPrincipal(ctx, "resetting password",
		`UPDATE principals SET password_hash = ?, failed_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		hash, formatTime(time.Now()), id)
}

// IncrementFailedAttempts bumps the failed-attempt counter in a single statement
// and returns the new value.
func (s *SQLiteStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE principals SET failed_attempts = failed_attempts + 1
		WHERE id = ? AND deleted_at IS NULL
		RETURNING failed_attempts
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPrincipalNotFound
	}
	if err != nil {
		return 0, wrapErr("incrementing failed attempts", err)
	}
	return count, nil
}

// LockPrincipal sets locked_until.
func (s *SQLiteStore) LockPrincipal(ctx context.Context, id string, until time.Time) error {
	return s.execPrincipal(ctx, "locking principal",
		`UPDATE principals SET locked_until = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(until), id)
}

// ClearLockout resets the failed-attempt counter and lock.
func (s *SQLiteStore) ClearLockout(ctx context.Context, id string) error {
	return s.execPrincipal(ctx, "clearing lockout",
		`UPDATE principals SET failed_attempts = 0, locked_until = NULL WHERE id = ? AND deleted_at IS NULL`,
		id)
}

// RecordSuccessfulLogin clears lockout state and stamps last_login.
func (s *SQLiteStore) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return s.execPrincipal(ctx, "recording login",
		`UPDATE principals SET failed_attempts = 0, locked_until = NULL, last_login = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), id)
}

// execPrincipal runs a single-row principal update, returning
// ErrPrincipalNotFound when nothing matched.
func (s *SQLiteStore) execPrincipal(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return err
		}
		return wrapErr(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Debug(op, "id", args[len(args)-1])
	return nil
}
