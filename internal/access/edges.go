// ABOUTME: Administrative management of assignment and supervision edges
// ABOUTME: Edges start now and are end-dated, never removed; every change is audited

package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/store"
)

// ErrSelfSupervision is returned when a principal would supervise itself.
var ErrSelfSupervision = errors.New("principal cannot supervise itself")

// AssignClient starts an assignment of providerID to clientID under role.
func (c *Controller) AssignClient(ctx context.Context, actorID, providerID, clientID string, role Role) (*store.ClientAssignment, error) {
	if _, err := c.principals.GetPrincipal(ctx, providerID); err != nil {
		return nil, fmt.Errorf("loading provider: %w", err)
	}

	a := &store.ClientAssignment{
		ProviderID: providerID,
		ClientID:   clientID,
		RoleLabel:  string(role),
		StartedAt:  c.now().UTC(),
	}
	if err := c.rel.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("creating assignment: %w", err)
	}

	c.audit.Log(ctx, audit.Event{
		Action:       audit.ActionPermissionChange,
		ResourceType: audit.ResourceAssignment,
		ResourceID:   a.ID,
		ActorID:      actorID,
		Detail: map[string]any{
			"change":      "assigned",
			"provider_id": providerID,
			"client_id":   clientID,
			"role":        string(role),
		},
	})
	c.logger.Info("client assigned", "provider_id", providerID, "client_id", clientID, "role", role)
	return a, nil
}

// EndAssignment end-dates an open assignment.
func (c *Controller) EndAssignment(ctx context.Context, actorID, assignmentID string) error {
	if err := c.rel.EndAssignment(ctx, assignmentID, c.now().UTC()); err != nil {
		return fmt.Errorf("ending assignment: %w", err)
	}

	c.audit.Log(ctx, audit.Event{
		Action:       audit.ActionPermissionChange,
		ResourceType: audit.ResourceAssignment,
		ResourceID:   assignmentID,
		ActorID:      actorID,
		Detail:       map[string]any{"change": "assignment_ended"},
	})
	return nil
}

// AddSupervision starts a supervision edge from supervisorID to superviseeID.
// The edge only grants access while the supervisor holds the supervisor flag.
func (c *Controller) AddSupervision(ctx context.Context, actorID, supervisorID, superviseeID string) (*store.SupervisionEdge, error) {
	if supervisorID == superviseeID {
		return nil, ErrSelfSupervision
	}

	supervisor, err := c.principals.GetPrincipal(ctx, supervisorID)
	if err != nil {
		return nil, fmt.Errorf("loading supervisor: %w", err)
	}
	if _, err := c.principals.GetPrincipal(ctx, superviseeID); err != nil {
		return nil, fmt.Errorf("loading supervisee: %w", err)
	}
	if !supervisor.Roles.Supervisor {
		c.logger.Warn("supervision edge added for principal without supervisor role", "supervisor_id", supervisorID)
	}

	e := &store.SupervisionEdge{
		SupervisorID: supervisorID,
		SuperviseeID: superviseeID,
		StartedAt:    c.now().UTC(),
	}
	if err := c.rel.CreateSupervision(ctx, e); err != nil {
		return nil, fmt.Errorf("creating supervision: %w", err)
	}

	c.audit.Log(ctx, audit.Event{
		Action:       audit.ActionPermissionChange,
		ResourceType: audit.ResourceSupervision,
		ResourceID:   e.ID,
		ActorID:      actorID,
		Detail: map[string]any{
			"change":        "supervision_added",
			"supervisor_id": supervisorID,
			"supervisee_id": superviseeID,
		},
	})
	c.logger.Info("supervision added", "supervisor_id", supervisorID, "supervisee_id", superviseeID)
	return e, nil
}

// EndSupervision end-dates an open supervision edge.
func (c *Controller) EndSupervision(ctx context.Context, actorID, edgeID string) error {
	if err := c.rel.EndSupervision(ctx, edgeID, c.now().UTC()); err != nil {
		return fmt.Errorf("ending supervision: %w", err)
	}

	c.audit.Log(ctx, audit.Event{
		Action:       audit.ActionPermissionChange,
		ResourceType: audit.ResourceSupervision,
		ResourceID:   edgeID,
		ActorID:      actorID,
		Detail:       map[string]any{"change": "supervision_ended"},
	})
	return nil
}
