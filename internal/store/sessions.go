// ABOUTME: Session row store methods for SQLite
// ABOUTME: Upsert, heartbeat, point delete, bulk revoke by principal, and idle cleanup

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ensure SQLiteStore implements SessionStore.
var _ SessionStore = (*SQLiteStore)(nil)

// GetSession retrieves a session row by ID.
// Returns ErrSessionNotFound if no row exists.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, principal_id, payload, created_at, last_activity
		FROM sessions
		WHERE id = ?
	`

	var sess Session
	var principalID sql.NullString
	var createdAtStr, lastActivityStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID,
		&principalID,
		&sess.Payload,
		&createdAtStr,
		&lastActivityStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, wrapErr("querying session", err)
	}

	sess.PrincipalID = principalID.String
	sess.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	sess.LastActivity, err = parseTime(lastActivityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}

	return &sess, nil
}

// TouchSession refreshes last_activity. Missing rows are ignored.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return wrapErr("touching session", err)
	}
	return nil
}

// UpsertSession inserts or replaces the session row keyed by ID.
// Concurrent writers to the same ID are last-write-wins.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (id, principal_id, payload, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			principal_id = excluded.principal_id,
			payload = excluded.payload,
			last_activity = excluded.last_activity
	`

	payload := sess.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		nullString(sess.PrincipalID),
		payload,
		formatTime(sess.CreatedAt),
		formatTime(sess.LastActivity),
	)
	if err != nil {
		return wrapErr("upserting session", err)
	}
	return nil
}

// DeleteSession removes a session row. Deleting a missing row is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return wrapErr("deleting session", err)
	}
	return nil
}

// DeleteSessionsForPrincipal removes every session bound to the principal.
func (s *SQLiteStore) DeleteSessionsForPrincipal(ctx context.Context, principalID string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE principal_id = ?", principalID)
	if err != nil {
		return 0, wrapErr("deleting principal sessions", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Info("revoked principal sessions", "principal_id", principalID, "count", rowsAffected)
	return int(rowsAffected), nil
}

// DeleteIdleSessions removes sessions whose last activity is before cutoff.
func (s *SQLiteStore) DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", formatTime(cutoff))
	if err != nil {
		return 0, wrapErr("deleting idle sessions", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted idle sessions", "count", rowsAffected)
	}
	return int(rowsAffected), nil
}
