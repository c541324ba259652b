// ABOUTME: Client access resolution from role flags and time-bounded edges
// ABOUTME: Every check reads the store at call time and fails closed

package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/metrics"
	"github.com/2389/chartguard/internal/store"
)

// Controller answers client access questions for principals.
type Controller struct {
	rel        store.RelationshipStore
	principals store.PrincipalStore
	audit      audit.Logger
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source used to decide which edges are active.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithAuditLogger sets where edge changes are recorded.
func WithAuditLogger(l audit.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.audit = l
		}
	}
}

// New creates a Controller.
func New(rel store.RelationshipStore, principals store.PrincipalStore, opts ...Option) *Controller {
	c := &Controller{
		rel:        rel,
		principals: principals,
		audit:      audit.Discard,
		now:        time.Now,
		logger:     slog.Default().With("component", "access"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func usable(p *store.Principal) bool {
	return p != nil && p.Active && !p.IsDeleted()
}

// Check returns nil if p holds perm on clientID. Refusals are *DeniedError;
// any other error is a store failure and must also be treated as a refusal.
func (c *Controller) Check(ctx context.Context, p *store.Principal, clientID string, perm Permission) error {
	err := c.check(ctx, p, clientID, perm)
	if err != nil {
		reason := string(ReasonOf(err))
		if reason == "" {
			reason = "store_error"
			c.logger.Error("access check failed", "client_id", clientID, "permission", perm, "error", err)
		}
		metrics.AccessDenialsTotal.WithLabelValues(reason).Inc()
	}
	return err
}

func (c *Controller) check(ctx context.Context, p *store.Principal, clientID string, perm Permission) error {
	if !usable(p) {
		return &DeniedError{Reason: ReasonInactivePrincipal, Permission: perm, ClientID: clientID}
	}
	if p.Roles.Admin {
		return nil
	}

	ok, err := c.reachable(ctx, p, clientID, c.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return &DeniedError{Reason: ReasonNoAssignment, Permission: perm, ClientID: clientID}
	}

	switch perm {
	case PermViewClinicalNotes:
		if p.Roles.SocialWorker && !p.Roles.Provider {
			return &DeniedError{Reason: ReasonWrongRoleForScope, Permission: perm, ClientID: clientID}
		}
	case PermCreateClinicalNote:
		if !p.Roles.Provider {
			return &DeniedError{Reason: ReasonWrongRoleForScope, Permission: perm, ClientID: clientID}
		}
	}
	return nil
}

// reachable reports a direct assignment or, for supervisors, one held by an
// active supervisee. Supervisees' own supervisees are not followed.
func (c *Controller) reachable(ctx context.Context, p *store.Principal, clientID string, at time.Time) (bool, error) {
	direct, err := c.rel.ActiveAssignmentsForClient(ctx, p.ID, clientID, at)
	if err != nil {
		return false, err
	}
	if len(direct) > 0 {
		return true, nil
	}
	if !p.Roles.Supervisor {
		return false, nil
	}
	return c.rel.SupervisedAssignmentExists(ctx, p.ID, clientID, at)
}

// CanAccessClient reports whether p may see clientID at all.
func (c *Controller) CanAccessClient(ctx context.Context, p *store.Principal, clientID string) bool {
	return c.Check(ctx, p, clientID, PermAccess) == nil
}

// CanViewClinicalNotes reports whether p may read clinical notes for clientID.
// Social workers without the provider flag are refused.
func (c *Controller) CanViewClinicalNotes(ctx context.Context, p *store.Principal, clientID string) bool {
	return c.Check(ctx, p, clientID, PermViewClinicalNotes) == nil
}

// CanCreateClinicalNotes reports whether p may author clinical notes for clientID.
func (c *Controller) CanCreateClinicalNotes(ctx context.Context, p *store.Principal, clientID string) bool {
	return c.Check(ctx, p, clientID, PermCreateClinicalNote) == nil
}

// CanEditDemographics reports whether p may edit clientID's demographics.
func (c *Controller) CanEditDemographics(ctx context.Context, p *store.Principal, clientID string) bool {
	return c.Check(ctx, p, clientID, PermEditDemographics) == nil
}

// AccessibleClientIDs returns All for admins, otherwise the union of p's
// direct assignments and, for supervisors, their active supervisees'
// assignments. Unusable principals get the empty set.
func (c *Controller) AccessibleClientIDs(ctx context.Context, p *store.Principal) (ClientSet, error) {
	if !usable(p) {
		return ClientSet{}, nil
	}
	if p.Roles.Admin {
		return All(), nil
	}

	at := c.now().UTC()
	set := ClientSet{}

	holders := []string{p.ID}
	if p.Roles.Supervisor {
		supervisees, err := c.rel.ActiveSuperviseeIDs(ctx, p.ID, at)
		if err != nil {
			return ClientSet{}, c.storeFailure("listing supervisees", err)
		}
		holders = append(holders, supervisees...)
	}

	for _, id := range holders {
		assignments, err := c.rel.ActiveAssignments(ctx, id, at)
		if err != nil {
			return ClientSet{}, c.storeFailure("listing assignments", err)
		}
		for _, a := range assignments {
			set.add(a.ClientID)
		}
	}
	return set, nil
}

// BuildClientAccessFilter returns a predicate over clientIDRef that selects
// exactly the clients AccessibleClientIDs would return at this instant.
func (c *Controller) BuildClientAccessFilter(p *store.Principal, clientIDRef string) Expr {
	if !usable(p) {
		return False()
	}
	if p.Roles.Admin {
		return True()
	}

	ts := store.FormatTime(c.now())
	direct := In(clientIDRef, `
		SELECT a.client_id FROM client_assignments a
		WHERE a.provider_id = ? AND a.started_at <= ? AND (a.ended_at IS NULL OR a.ended_at > ?)`,
		p.ID, ts, ts)
	if !p.Roles.Supervisor {
		return direct
	}

	supervised := In(clientIDRef, `
		SELECT a.client_id FROM client_assignments a
		JOIN supervision_edges s ON s.supervisee_id = a.provider_id
		WHERE s.supervisor_id = ?
		  AND s.started_at <= ? AND (s.ended_at IS NULL OR s.ended_at > ?)
		  AND a.started_at <= ? AND (a.ended_at IS NULL OR a.ended_at > ?)`,
		p.ID, ts, ts, ts, ts)
	return Or(direct, supervised)
}

// ClientRole resolves p's role for clientID. Multiple direct labels resolve by
// precedence. A principal reaching the client only through a supervisee gets
// RoleSupervisor. The second result is false when no role applies.
func (c *Controller) ClientRole(ctx context.Context, p *store.Principal, clientID string) (Role, bool) {
	if !usable(p) {
		return "", false
	}

	at := c.now().UTC()
	assignments, err := c.rel.ActiveAssignmentsForClient(ctx, p.ID, clientID, at)
	if err != nil {
		c.storeFailure("resolving client role", err)
		return "", false
	}
	if len(assignments) > 0 {
		best := Role(assignments[0].RoleLabel)
		for _, a := range assignments[1:] {
			if r := Role(a.RoleLabel); r.Outranks(best) {
				best = r
			}
		}
		return best, true
	}

	if p.Roles.Supervisor {
		ok, err := c.rel.SupervisedAssignmentExists(ctx, p.ID, clientID, at)
		if err != nil {
			c.storeFailure("resolving client role", err)
			return "", false
		}
		if ok {
			return RoleSupervisor, true
		}
	}
	return "", false
}

func (c *Controller) storeFailure(op string, err error) error {
	c.logger.Error("access query failed", "op", op, "error", err)
	metrics.AccessDenialsTotal.WithLabelValues("store_error").Inc()
	return fmt.Errorf("%s: %w", op, err)
}
