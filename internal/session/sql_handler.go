// ABOUTME: Session handler backed by the SQLite sessions table
// ABOUTME: Idle cleanup runs as a single DELETE on last_activity

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/chartguard/internal/store"
)

// SQLHandler stores sessions through a store.SessionStore.
type SQLHandler struct {
	store  store.SessionStore
	now    func() time.Time
	logger *slog.Logger
}

// Ensure SQLHandler implements Handler.
var _ Handler = (*SQLHandler)(nil)

// NewSQLHandler creates a handler over s. A nil now defaults to time.Now.
func NewSQLHandler(s store.SessionStore, now func() time.Time) *SQLHandler {
	if now == nil {
		now = time.Now
	}
	return &SQLHandler{
		store:  s,
		now:    now,
		logger: slog.Default().With("component", "session", "backend", "sqlite"),
	}
}

// Open verifies the store is reachable.
func (h *SQLHandler) Open(ctx context.Context) error {
	return h.store.Ping(ctx)
}

// Close is a no-op; the store's lifetime is owned by the caller.
func (h *SQLHandler) Close() error {
	return nil
}

// Read loads a record and refreshes its last activity.
func (h *SQLHandler) Read(ctx context.Context, id string) (*Record, error) {
	sess, err := h.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if err := h.store.TouchSession(ctx, id, h.now().UTC()); err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	return &Record{
		ID:           sess.ID,
		PrincipalID:  sess.PrincipalID,
		Payload:      sess.Payload,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}, nil
}

// Write upserts a record.
func (h *SQLHandler) Write(ctx context.Context, r *Record) error {
	err := h.store.UpsertSession(ctx, &store.Session{
		ID:           r.ID,
		PrincipalID:  r.PrincipalID,
		Payload:      r.Payload,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Destroy removes a record.
func (h *SQLHandler) Destroy(ctx context.Context, id string) error {
	if err := h.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

// DestroyPrincipal removes every record bound to principalID.
func (h *SQLHandler) DestroyPrincipal(ctx context.Context, principalID string) (int, error) {
	n, err := h.store.DeleteSessionsForPrincipal(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("destroying principal sessions: %w", err)
	}
	return n, nil
}

// GC removes records idle for longer than maxAge.
func (h *SQLHandler) GC(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := h.now().UTC().Add(-maxAge)
	n, err := h.store.DeleteIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("collecting sessions: %w", err)
	}
	if n > 0 {
		h.logger.Info("collected idle sessions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
