// ABOUTME: Store interfaces and data types for chartguard persistence
// ABOUTME: Defines principals, sessions, clients, edges, audit events and the interfaces over them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// ErrPrincipalNotFound is returned when a principal doesn't exist or is soft-deleted.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrSessionNotFound is returned when a session row doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrUsernameExists is returned when a non-deleted principal already holds the username.
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is returned when a non-deleted principal already holds the email.
var ErrEmailExists = errors.New("email already exists")

// Roles holds the independent role flags of a principal. A principal may hold
// any combination.
type Roles struct {
	Admin        bool
	Provider     bool
	Supervisor   bool
	SocialWorker bool
}

// Names returns the set flags in a fixed order.
func (r Roles) Names() []string {
	names := []string{}
	if r.Admin {
		names = append(names, "admin")
	}
	if r.Provider {
		names = append(names, "provider")
	}
	if r.Supervisor {
		names = append(names, "supervisor")
	}
	if r.SocialWorker {
		names = append(names, "social_worker")
	}
	return names
}

// Principal is a staff account.
type Principal struct {
	ID             string
	Username       string
	Email          string // empty if none
	DisplayName    string
	PasswordHash   string
	Roles          Roles
	Active         bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsDeleted reports whether the principal has been soft-deleted.
func (p *Principal) IsDeleted() bool {
	return p.DeletedAt != nil
}

// IsLocked reports whether the principal is locked out at the given time.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// Session is a persisted session row. PrincipalID is empty for unauthenticated sessions.
type Session struct {
	ID           string
	PrincipalID  string
	Payload      []byte
	CreatedAt    time.Time
	LastActivity time.Time
}

// Client is a care recipient, tracked here only as an access-controlled resource.
type Client struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// SupervisionEdge grants SupervisorID indirect access through SuperviseeID's assignments.
type SupervisionEdge struct {
	ID           string
	SupervisorID string
	SuperviseeID string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// ActiveAt reports whether the edge is in force at t.
func (e *SupervisionEdge) ActiveAt(t time.Time) bool {
	return activeAt(e.StartedAt, e.EndedAt, t)
}

// ClientAssignment links a provider to a client under a role label.
type ClientAssignment struct {
	ID         string
	ProviderID string
	ClientID   string
	RoleLabel  string
	StartedAt  time.Time
	EndedAt    *time.Time
}

// ActiveAt reports whether the assignment is in force at t.
func (a *ClientAssignment) ActiveAt(t time.Time) bool {
	return activeAt(a.StartedAt, a.EndedAt, t)
}

func activeAt(started time.Time, ended *time.Time, t time.Time) bool {
	if started.After(t) {
		return false
	}
	return ended == nil || ended.After(t)
}

// AuditEvent is an immutable compliance record.
type AuditEvent struct {
	ID            string
	ActorID       string // empty for anonymous actions (e.g. unknown-user logins)
	ActorName     string // resolved on read, never stored
	Action        string
	ResourceType  string
	ResourceID    string
	Detail        map[string]any
	OriginAddress string
	CreatedAt     time.Time
}

// AuditFilter selects audit events. Nil fields are ignored.
type AuditFilter struct {
	ResourceType *string
	ResourceID   *string
	Action       *string
	ActorID      *string
	Since        *time.Time
	Limit        int // default 100, max 1000
}

// Condition is a composable SQL predicate with bound arguments. Placeholders use "?".
type Condition interface {
	ToSQL() (string, []any)
}

// PrincipalStore persists staff accounts and their lockout state.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByUsername(ctx context.Context, username string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	ListPrincipals(ctx context.Context) ([]*Principal, error)
	UpdatePrincipalProfile(ctx context.Context, id, email, displayName string) error
	SetPrincipalRoles(ctx context.Context, id string, roles Roles) error
	SetPrincipalActive(ctx context.Context, id string, active bool) error
	SoftDeletePrincipal(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// ResetPassword replaces the hash and clears lockout in one update.
	ResetPassword(ctx context.Context, id, hash string) error

	// Lockout bookkeeping
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	LockPrincipal(ctx context.Context, id string, until time.Time) error
	ClearLockout(ctx context.Context, id string) error
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists opaque session rows.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	UpsertSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsForPrincipal(ctx context.Context, principalID string) (int, error)
	DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int, error)
	Ping(ctx context.Context) error
}

// RelationshipStore persists clients and the time-bounded edges that grant access to them.
type RelationshipStore interface {
	CreateClient(ctx context.Context, c *Client) error
	ListClientIDs(ctx context.Context) ([]string, error)
	SelectClientIDs(ctx context.Context, cond Condition) ([]string, error)

	CreateAssignment(ctx context.Context, a *ClientAssignment) error
	EndAssignment(ctx context.Context, id string, at time.Time) error
	ActiveAssignments(ctx context.Context, providerID string, at time.Time) ([]*ClientAssignment, error)
	ActiveAssignmentsForClient(ctx context.Context, providerID, clientID string, at time.Time) ([]*ClientAssignment, error)

	CreateSupervision(ctx context.Context, e *SupervisionEdge) error
	EndSupervision(ctx context.Context, id string, at time.Time) error
	ActiveSuperviseeIDs(ctx context.Context, supervisorID string, at time.Time) ([]string, error)
	SupervisedAssignmentExists(ctx context.Context, supervisorID, clientID string, at time.Time) (bool, error)

	EndEdgesForPrincipal(ctx context.Context, principalID string, at time.Time) error
}

// AuditStore persists the append-only audit log.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, e *AuditEvent) error
	ListAuditEvents(ctx context.Context, f AuditFilter) ([]*AuditEvent, error)
}

// FullStore is everything the SQLite and mock stores implement.
type FullStore interface {
	PrincipalStore
	SessionStore
	RelationshipStore
	AuditStore
	Close() error
}

// normalizeLimit applies default (100) and cap (1000) to list limits.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
