// ABOUTME: Session manager producing per-request session contexts
// ABOUTME: Enforces idle lifetime on resume and handles administrative revocation and GC

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/metrics"
)

// DefaultLifetime is the idle lifetime applied when none is configured.
const DefaultLifetime = 8 * time.Hour

// Manager starts sessions over a Handler. It holds no per-session state.
type Manager struct {
	handler  Handler
	lifetime time.Duration
	audit    audit.Logger
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLifetime sets the idle lifetime.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithAuditLogger sets where logout and revocation events go.
func WithAuditLogger(l audit.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.audit = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over h.
func NewManager(h Handler, opts ...Option) *Manager {
	m := &Manager{
		handler:  h,
		lifetime: DefaultLifetime,
		audit:    audit.Discard,
		now:      time.Now,
		logger:   slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lifetime returns the configured idle lifetime.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Handler returns the underlying handler.
func (m *Manager) Handler() Handler {
	return m.handler
}

// Start resumes the session with the given ID, or begins a new anonymous one
// when id is empty, unknown, or idle past the lifetime. An unknown ID is never
// adopted; the new session always gets a fresh ID.
func (m *Manager) Start(ctx context.Context, id string) (*Context, error) {
	if id == "" {
		return m.fresh()
	}

	rec, err := m.handler.Read(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return m.fresh()
	}
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	now := m.now().UTC()
	if now.Sub(rec.LastActivity) > m.lifetime {
		if err := m.handler.Destroy(ctx, id); err != nil {
			return nil, fmt.Errorf("destroying idle session: %w", err)
		}
		m.logger.Debug("idle session expired", "principal_id", rec.PrincipalID, "last_activity", rec.LastActivity)
		return m.fresh()
	}

	data, err := decodePayload(rec.Payload)
	if err != nil {
		// unreadable payloads are discarded rather than trusted
		m.logger.Warn("discarding undecodable session", "error", err)
		if err := m.handler.Destroy(ctx, id); err != nil {
			return nil, fmt.Errorf("destroying corrupt session: %w", err)
		}
		return m.fresh()
	}

	return &Context{
		m:           m,
		id:          rec.ID,
		principalID: rec.PrincipalID,
		data:        data,
		createdAt:   rec.CreatedAt,
	}, nil
}

// RevokePrincipal destroys every session of principalID and audits the revocation.
func (m *Manager) RevokePrincipal(ctx context.Context, actorID, principalID string) (int, error) {
	n, err := m.handler.DestroyPrincipal(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}

	metrics.SessionsRevokedTotal.Add(float64(n))
	m.audit.Log(ctx, audit.Event{
		Action:       audit.ActionSessionRevoked,
		ResourceType: audit.ResourceUser,
		ResourceID:   principalID,
		ActorID:      actorID,
		Detail:       map[string]any{"count": n},
	})
	m.logger.Info("sessions revoked", "principal_id", principalID, "count", n, "actor", actorID)
	return n, nil
}

// Collect removes sessions idle for longer than the lifetime.
func (m *Manager) Collect(ctx context.Context) (int, error) {
	n, err := m.handler.GC(ctx, m.lifetime)
	if err != nil {
		return 0, fmt.Errorf("collecting sessions: %w", err)
	}
	metrics.SessionsCollectedTotal.Add(float64(n))
	return n, nil
}

func (m *Manager) fresh() (*Context, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Context{
		m:         m,
		id:        id,
		data:      map[string]any{},
		createdAt: m.now().UTC(),
	}, nil
}
