// ABOUTME: Audit log store methods for the append-only compliance trail
// ABOUTME: Records who did what to which resource; reads newest first with actor names

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ensure SQLiteStore implements AuditStore.
var _ AuditStore = (*SQLiteStore)(nil)

// AppendAuditEvent appends a new event to the audit log.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, e *AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (id, actor_id, action, resource_type, resource_id, detail_json, origin_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		nullString(e.ActorID),
		e.Action,
		e.ResourceType,
		nullString(e.ResourceID),
		detailJSON,
		nullString(e.OriginAddress),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return wrapErr("inserting audit event", err)
	}

	s.logger.Debug("appended audit event",
		"id", e.ID,
		"actor", e.ActorID,
		"action", e.Action,
		"resource", e.ResourceType+"/"+e.ResourceID,
	)
	return nil
}

const auditEventQuery = `
	SELECT l.id, l.actor_id, p.display_name, l.action, l.resource_type, l.resource_id,
	       l.detail_json, l.origin_address, l.created_at
	FROM audit_log l
	LEFT JOIN principals p ON p.id = l.actor_id
	WHERE (? IS NULL OR l.resource_type = ?)
	  AND (? IS NULL OR l.resource_id = ?)
	  AND (? IS NULL OR l.action = ?)
	  AND (? IS NULL OR l.actor_id = ?)
	  AND (? IS NULL OR l.created_at >= ?)
	ORDER BY l.created_at DESC, l.rowid DESC
	LIMIT ?
`

// ListAuditEvents returns audit events matching the filter, newest first.
// ActorName is filled from the principals table when the actor exists.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, f AuditFilter) ([]*AuditEvent, error) {
	limit := normalizeLimit(f.Limit)

	var since *string
	if f.Since != nil {
		str := formatTime(*f.Since)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, auditEventQuery,
		f.ResourceType, f.ResourceType,
		f.ResourceID, f.ResourceID,
		f.Action, f.Action,
		f.ActorID, f.ActorID,
		since, since,
		limit,
	)
	if err != nil {
		return nil, wrapErr("querying audit log", err)
	}
	defer func() { _ = rows.Close() }()

	events := []*AuditEvent{}
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

// scanAuditEvent scans a row selected by auditEventQuery.
func scanAuditEvent(row rowScanner) (*AuditEvent, error) {
	var e AuditEvent
	var actorID, actorName, resourceID, detailJSON, origin sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&e.ID,
		&actorID,
		&actorName,
		&e.Action,
		&e.ResourceType,
		&resourceID,
		&detailJSON,
		&origin,
		&createdAtStr,
	); err != nil {
		return nil, fmt.Errorf("scanning audit event: %w", err)
	}

	e.ActorID = actorID.String
	e.ActorName = actorName.String
	e.ResourceID = resourceID.String
	e.OriginAddress = origin.String

	var err error
	e.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if detailJSON.Valid {
		if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return &e, nil
}
