// ABOUTME: Mock store implementation for testing
// ABOUTME: In-memory FullStore with a switch that simulates an unreachable backend

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errMockConditions is returned by SelectClientIDs; the mock cannot evaluate SQL.
var errMockConditions = errors.New("mock store cannot evaluate SQL conditions")

// MockStore is an in-memory FullStore implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	unavailable bool
	principals  map[string]*Principal        // keyed by principal ID
	sessions    map[string]*Session          // keyed by session ID
	clients     map[string]*Client           // keyed by client ID
	assignments map[string]*ClientAssignment // keyed by assignment ID
	supervision map[string]*SupervisionEdge  // keyed by edge ID
	audit       []*AuditEvent                // append order
}

// Ensure MockStore implements FullStore.
var _ FullStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		principals:  make(map[string]*Principal),
		sessions:    make(map[string]*Session),
		clients:     make(map[string]*Client),
		assignments: make(map[string]*ClientAssignment),
		supervision: make(map[string]*SupervisionEdge),
	}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable (or succeed again).
func (m *MockStore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// AuditEvents returns a copy of every appended audit event in append order.
func (m *MockStore) AuditEvents() []*AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*AuditEvent, len(m.audit))
	for i, e := range m.audit {
		c := *e
		out[i] = &c
	}
	return out
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Ping fails only when the mock is marked unavailable.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return ErrUnavailable
	}
	return nil
}

// livePrincipal returns the stored pointer for a non-deleted principal. Caller holds the lock.
func (m *MockStore) livePrincipal(id string) (*Principal, error) {
	if m.unavailable {
		return nil, ErrUnavailable
	}
	p, ok := m.principals[id]
	if !ok || p.DeletedAt != nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

// CreatePrincipal stores a principal, enforcing live username/email uniqueness.
func (m *MockStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	for _, existing := range m.principals {
		if existing.DeletedAt != nil {
			continue
		}
		if existing.Username == p.Username {
			return ErrUsernameExists
		}
		if p.Email != "" && existing.Email == p.Email {
			return ErrEmailExists
		}
	}

	c := *p
	m.principals[c.ID] = &c
	return nil
}

// GetPrincipal retrieves a live principal by ID.
func (m *MockStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.livePrincipal(id)
	if err != nil {
		return nil, err
	}
	c := *p
	return &c, nil
}

// GetPrincipalByUsername retrieves a live principal by username.
func (m *MockStore) GetPrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	return m.findPrincipal(func(p *Principal) bool { return p.Username == username })
}

// GetPrincipalByEmail retrieves a live principal by email.
func (m *MockStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return m.findPrincipal(func(p *Principal) bool { return email != "" && p.Email == email })
}

func (m *MockStore) findPrincipal(match func(*Principal) bool) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	for _, p := range m.principals {
		if p.DeletedAt == nil && match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

// ListPrincipals returns live principals ordered by username.
func (m *MockStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	var out []*Principal
	for _, p := range m.principals {
		if p.DeletedAt == nil {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// UpdatePrincipalProfile changes email and display name.
func (m *MockStore) UpdatePrincipalProfile(ctx context.Context, id, email, displayName string) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		if email != "" {
			for _, other := range m.principals {
				if other.ID != id && other.DeletedAt == nil && other.Email == email {
					return ErrEmailExists
				}
			}
		}
		p.Email = email
		p.DisplayName = displayName
		return nil
	})
}

// SetPrincipalRoles replaces the role flags.
func (m *MockStore) SetPrincipalRoles(ctx context.Context, id string, roles Roles) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		p.Roles = roles
		return nil
	})
}

// SetPrincipalActive sets the active flag.
func (m *MockStore) SetPrincipalActive(ctx context.Context, id string, active bool) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		p.Active = active
		return nil
	})
}

// SoftDeletePrincipal marks the principal deleted.
func (m *MockStore) SoftDeletePrincipal(ctx context.Context, id string, at time.Time) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		t := at
		p.DeletedAt = &t
		p.Active = false
		return nil
	})
}

// UpdatePasswordHash replaces the password hash.
func (m *MockStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		p.PasswordHash = hash
		return nil
	})
}

// ResetPassword replaces the hash and clears lockout state.
func (m *MockStore) ResetPassword(ctx context.Context, id, hash string) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		p.PasswordHash = hash
		p.FailedAttempts = 0
		p.LockedUntil = nil
		return nil
	})
}

// IncrementFailedAttempts bumps the counter and returns the new value.
func (m *MockStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := m.updatePrincipal(id, func(p *Principal) error {
		p.FailedAttempts++
		count = p.FailedAttempts
		return nil
	})
	return count, err
}

// LockPrincipal sets locked_until.
func (m *MockStore) LockPrincipal(ctx context.Context, id string, until time.Time) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		t := until
		p.LockedUntil = &t
		return nil
	})
}

// ClearLockout resets the counter and lock.
func (m *MockStore) ClearLockout(ctx context.Context, id string) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		p.FailedAttempts = 0
		p.LockedUntil = nil
		return nil
	})
}

// RecordSuccessfulLogin clears lockout state and stamps last login.
func (m *MockStore) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return m.updatePrincipal(id, func(p *Principal) error {
		t := at
		p.FailedAttempts = 0
		p.LockedUntil = nil
		p.LastLogin = &t
		return nil
	})
}

func (m *MockStore) updatePrincipal(id string, fn func(*Principal) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.livePrincipal(id)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c := *s
	c.Payload = append([]byte(nil), s.Payload...)
	return &c, nil
}

// TouchSession refreshes last activity.
func (m *MockStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = at
	}
	return nil
}

// UpsertSession inserts or replaces a session, keeping the original CreatedAt.
func (m *MockStore) UpsertSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	c := *s
	c.Payload = append([]byte(nil), s.Payload...)
	if existing, ok := m.sessions[s.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	m.sessions[c.ID] = &c
	return nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	delete(m.sessions, id)
	return nil
}

// DeleteSessionsForPrincipal removes every session for a principal.
func (m *MockStore) DeleteSessionsForPrincipal(ctx context.Context, principalID string) (int, error) {
	return m.deleteSessionsWhere(func(s *Session) bool { return s.PrincipalID == principalID })
}

// DeleteIdleSessions removes sessions idle since before cutoff.
func (m *MockStore) DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int, error) {
	return m.deleteSessionsWhere(func(s *Session) bool { return s.LastActivity.Before(cutoff) })
}

func (m *MockStore) deleteSessionsWhere(match func(*Session) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return 0, ErrUnavailable
	}
	count := 0
	for id, s := range m.sessions {
		if match(s) {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

// CreateClient stores a client.
func (m *MockStore) CreateClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	m.clients[cp.ID] = &cp
	return nil
}

// ListClientIDs returns every client ID in ascending order.
func (m *MockStore) ListClientIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SelectClientIDs is not supported; conditions are SQL.
func (m *MockStore) SelectClientIDs(ctx context.Context, cond Condition) ([]string, error) {
	return nil, errMockConditions
}

// CreateAssignment stores an assignment.
func (m *MockStore) CreateAssignment(ctx context.Context, a *ClientAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	c := *a
	m.assignments[c.ID] = &c
	return nil
}

// EndAssignment end-dates an open assignment.
func (m *MockStore) EndAssignment(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	a, ok := m.assignments[id]
	if !ok || (a.EndedAt != nil && !a.EndedAt.After(at)) {
		return ErrNotFound
	}
	t := at
	a.EndedAt = &t
	return nil
}

// ActiveAssignments returns a provider's active assignments ordered by client.
func (m *MockStore) ActiveAssignments(ctx context.Context, providerID string, at time.Time) ([]*ClientAssignment, error) {
	return m.filterAssignments(func(a *ClientAssignment) bool {
		return a.ProviderID == providerID && a.ActiveAt(at)
	})
}

// ActiveAssignmentsForClient returns a provider's active assignments to one client.
func (m *MockStore) ActiveAssignmentsForClient(ctx context.Context, providerID, clientID string, at time.Time) ([]*ClientAssignment, error) {
	return m.filterAssignments(func(a *ClientAssignment) bool {
		return a.ProviderID == providerID && a.ClientID == clientID && a.ActiveAt(at)
	})
}

func (m *MockStore) filterAssignments(match func(*ClientAssignment) bool) ([]*ClientAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	var out []*ClientAssignment
	for _, a := range m.assignments {
		if match(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// CreateSupervision stores a supervision edge.
func (m *MockStore) CreateSupervision(ctx context.Context, e *SupervisionEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	c := *e
	m.supervision[c.ID] = &c
	return nil
}

// EndSupervision end-dates an open supervision edge.
func (m *MockStore) EndSupervision(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	e, ok := m.supervision[id]
	if !ok || (e.EndedAt != nil && !e.EndedAt.After(at)) {
		return ErrNotFound
	}
	t := at
	e.EndedAt = &t
	return nil
}

// ActiveSuperviseeIDs returns distinct active supervisees, sorted.
func (m *MockStore) ActiveSuperviseeIDs(ctx context.Context, supervisorID string, at time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	seen := make(map[string]struct{})
	ids := []string{}
	for _, e := range m.supervision {
		if e.SupervisorID != supervisorID || !e.ActiveAt(at) {
			continue
		}
		if _, ok := seen[e.SuperviseeID]; ok {
			continue
		}
		seen[e.SuperviseeID] = struct{}{}
		ids = append(ids, e.SuperviseeID)
	}
	sort.Strings(ids)
	return ids, nil
}

// SupervisedAssignmentExists reports whether an active supervisee holds an active assignment.
func (m *MockStore) SupervisedAssignmentExists(ctx context.Context, supervisorID, clientID string, at time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return false, ErrUnavailable
	}
	for _, e := range m.supervision {
		if e.SupervisorID != supervisorID || !e.ActiveAt(at) {
			continue
		}
		for _, a := range m.assignments {
			if a.ProviderID == e.SuperviseeID && a.ClientID == clientID && a.ActiveAt(at) {
				return true, nil
			}
		}
	}
	return false, nil
}

// EndEdgesForPrincipal end-dates every open edge touching the principal.
func (m *MockStore) EndEdgesForPrincipal(ctx context.Context, principalID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	for _, a := range m.assignments {
		if a.ProviderID == principalID && (a.EndedAt == nil || a.EndedAt.After(at)) {
			t := at
			a.EndedAt = &t
		}
	}
	for _, e := range m.supervision {
		if (e.SupervisorID == principalID || e.SuperviseeID == principalID) && (e.EndedAt == nil || e.EndedAt.After(at)) {
			t := at
			e.EndedAt = &t
		}
	}
	return nil
}

// AppendAuditEvent appends an audit event.
func (m *MockStore) AppendAuditEvent(ctx context.Context, e *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return ErrUnavailable
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	c := *e
	m.audit = append(m.audit, &c)
	return nil
}

// ListAuditEvents returns matching events newest first.
func (m *MockStore) ListAuditEvents(ctx context.Context, f AuditFilter) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}
	limit := normalizeLimit(f.Limit)
	out := []*AuditEvent{}
	// walk backwards so equal timestamps keep newest-appended first
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.ResourceType != nil && e.ResourceType != *f.ResourceType {
			continue
		}
		if f.ResourceID != nil && e.ResourceID != *f.ResourceID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if f.Since != nil && e.CreatedAt.Before(*f.Since) {
			continue
		}
		c := *e
		if p, ok := m.principals[e.ActorID]; ok {
			c.ActorName = p.DisplayName
		}
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
