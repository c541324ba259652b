// ABOUTME: Client, assignment, and supervision edge store methods for SQLite
// ABOUTME: Edges are time-bounded and end-dated, never physically removed

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ensure SQLiteStore implements RelationshipStore.
var _ RelationshipStore = (*SQLiteStore)(nil)

// activeClause restricts an edge table alias to rows in force at a bound time.
// It consumes two arguments, both the same instant.
func activeClause(alias string) string {
	return alias + ".started_at <= ? AND (" + alias + ".ended_at IS NULL OR " + alias + ".ended_at > ?)"
}

// CreateClient inserts a client.
func (s *SQLiteStore) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, display_name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.DisplayName, formatTime(c.CreatedAt))
	if err != nil {
		return wrapErr("inserting client", err)
	}

	s.logger.Debug("created client", "id", c.ID)
	return nil
}

// ListClientIDs returns every client ID in ascending order.
func (s *SQLiteStore) ListClientIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, "listing clients", `SELECT id FROM clients ORDER BY id`)
}

// SelectClientIDs returns the IDs of clients matching cond. The condition may
// reference the client ID column as clients.id.
func (s *SQLiteStore) SelectClientIDs(ctx context.Context, cond Condition) ([]string, error) {
	where, args := cond.ToSQL()
	query := `SELECT clients.id FROM clients WHERE ` + where + ` ORDER BY clients.id`
	return s.queryIDs(ctx, "selecting clients", query, args...)
}

// CreateAssignment inserts a client assignment.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *ClientAssignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO client_assignments (id, provider_id, client_id, role_label, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.ProviderID, a.ClientID, a.RoleLabel, formatTime(a.StartedAt), nullTime(a.EndedAt))
	if err != nil {
		return wrapErr("inserting assignment", err)
	}

	s.logger.Debug("created assignment", "id", a.ID, "provider_id", a.ProviderID, "client_id", a.ClientID, "role", a.RoleLabel)
	return nil
}

// EndAssignment end-dates an assignment that is still open at the given time.
// Returns ErrNotFound if no such open assignment exists.
func (s *SQLiteStore) EndAssignment(ctx context.Context, id string, at time.Time) error {
	return s.endEdge(ctx, "client_assignments", id, at)
}

// ActiveAssignments returns the provider's assignments in force at the given time.
func (s *SQLiteStore) ActiveAssignments(ctx context.Context, providerID string, at time.Time) ([]*ClientAssignment, error) {
	query := `
		SELECT a.id, a.provider_id, a.client_id, a.role_label, a.started_at, a.ended_at
		FROM client_assignments a
		WHERE a.provider_id = ? AND ` + activeClause("a") + `
		ORDER BY a.client_id, a.started_at
	`
	ts := formatTime(at)
	return s.queryAssignments(ctx, query, providerID, ts, ts)
}

// ActiveAssignmentsForClient returns the provider's assignments to one client in force at the given time.
func (s *SQLiteStore) ActiveAssignmentsForClient(ctx context.Context, providerID, clientID string, at time.Time) ([]*ClientAssignment, error) {
	query := `
		SELECT a.id, a.provider_id, a.client_id, a.role_label, a.started_at, a.ended_at
		FROM client_assignments a
		WHERE a.provider_id = ? AND a.client_id = ? AND ` + activeClause("a") + `
		ORDER BY a.started_at
	`
	ts := formatTime(at)
	return s.queryAssignments(ctx, query, providerID, clientID, ts, ts)
}

// CreateSupervision inserts a supervision edge.
func (s *SQLiteStore) CreateSupervision(ctx context.Context, e *SupervisionEdge) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO supervision_edges (id, supervisor_id, supervisee_id, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.SupervisorID, e.SuperviseeID, formatTime(e.StartedAt), nullTime(e.EndedAt))
	if err != nil {
		return wrapErr("inserting supervision edge", err)
	}

	s.logger.Debug("created supervision edge", "id", e.ID, "supervisor_id", e.SupervisorID, "supervisee_id", e.SuperviseeID)
	return nil
}

// EndSupervision end-dates a supervision edge that is still open at the given time.
func (s *SQLiteStore) EndSupervision(ctx context.Context, id string, at time.Time) error {
	return s.endEdge(ctx, "supervision_edges", id, at)
}

// ActiveSuperviseeIDs returns the distinct supervisees of supervisorID at the given time.
// Only direct edges are followed.
func (s *SQLiteStore) ActiveSuperviseeIDs(ctx context.Context, supervisorID string, at time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT s.supervisee_id
		FROM supervision_edges s
		WHERE s.supervisor_id = ? AND ` + activeClause("s") + `
		ORDER BY s.supervisee_id
	`
	ts := formatTime(at)
	return s.queryIDs(ctx, "listing supervisees", query, supervisorID, ts, ts)
}

// SupervisedAssignmentExists reports whether any active supervisee of
// supervisorID holds an active assignment to clientID.
func (s *SQLiteStore) SupervisedAssignmentExists(ctx context.Context, supervisorID, clientID string, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM supervision_edges s
			JOIN client_assignments a ON a.provider_id = s.supervisee_id
			WHERE s.supervisor_id = ? AND a.client_id = ?
			  AND ` + activeClause("s") + `
			  AND ` + activeClause("a") + `
		)
	`
	ts := formatTime(at)
	var exists int
	if err := s.db.QueryRowContext(ctx, query, supervisorID, clientID, ts, ts, ts, ts).Scan(&exists); err != nil {
		return false, wrapErr("checking supervised assignment", err)
	}
	return exists != 0, nil
}

// EndEdgesForPrincipal end-dates every open assignment and supervision edge
// touching the principal.
func (s *SQLiteStore) EndEdgesForPrincipal(ctx context.Context, principalID string, at time.Time) error {
	ts := formatTime(at)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE client_assignments SET ended_at = ?
		WHERE provider_id = ? AND (ended_at IS NULL OR ended_at > ?)
	`, ts, principalID, ts); err != nil {
		return wrapErr("ending assignments", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE supervision_edges SET ended_at = ?
		WHERE (supervisor_id = ? OR supervisee_id = ?) AND (ended_at IS NULL OR ended_at > ?)
	`, ts, principalID, principalID, ts); err != nil {
		return wrapErr("ending supervision edges", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("committing edge end-dates", err)
	}

	s.logger.Info("ended edges for principal", "principal_id", principalID)
	return nil
}

// endEdge sets ended_at on an edge row that is still open at the given time.
func (s *SQLiteStore) endEdge(ctx context.Context, table, id string, at time.Time) error {
	ts := formatTime(at)
	result, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET ended_at = ? WHERE id = ? AND (ended_at IS NULL OR ended_at > ?)`,
		ts, id, ts)
	if err != nil {
		return wrapErr("ending "+table, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("ended edge", "table", table, "id", id)
	return nil
}

func (s *SQLiteStore) queryAssignments(ctx context.Context, query string, args ...any) ([]*ClientAssignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("querying assignments", err)
	}
	defer func() { _ = rows.Close() }()

	var assignments []*ClientAssignment
	for rows.Next() {
		var a ClientAssignment
		var startedAtStr string
		var endedAt sql.NullString

		if err := rows.Scan(&a.ID, &a.ProviderID, &a.ClientID, &a.RoleLabel, &startedAtStr, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		if a.StartedAt, err = parseTime(startedAtStr); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if a.EndedAt, err = parseNullTime(endedAt); err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		assignments = append(assignments, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return assignments, nil
}

func (s *SQLiteStore) queryIDs(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scanning id: %w", op, err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating rows: %w", op, err)
	}
	return ids, nil
}
