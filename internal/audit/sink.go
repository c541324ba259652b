// ABOUTME: Best-effort audit sink writing to the append-only audit log
// ABOUTME: Log never fails the caller; write failures are logged and counted instead

package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/chartguard/internal/metrics"
	"github.com/2389/chartguard/internal/store"
)

// Event is a single audit record to be written.
type Event struct {
	Action       Action
	ResourceType string
	ResourceID   string
	Detail       map[string]any
	ActorID      string // empty for anonymous actions
	Origin       string // defaults to OriginFromContext
}

// Logger is what the auth, session and access packages depend on.
type Logger interface {
	Log(ctx context.Context, e Event) bool
}

// Discard is a Logger that drops every event and reports success.
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(context.Context, Event) bool { return true }

// Sink writes audit events to an AuditStore.
type Sink struct {
	store  store.AuditStore
	logger *slog.Logger
}

// Ensure Sink implements Logger.
var _ Logger = (*Sink)(nil)

// NewSink creates a Sink over the given store.
func NewSink(s store.AuditStore) *Sink {
	return &Sink{
		store:  s,
		logger: slog.Default().With("component", "audit"),
	}
}

// Log appends the event and reports whether it was persisted. It never panics
// and never returns an error; a failed write is logged and counted.
func (s *Sink) Log(ctx context.Context, e Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(e, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	origin := e.Origin
	if origin == "" {
		origin = OriginFromContext(ctx)
	}

	err := s.store.AppendAuditEvent(ctx, &store.AuditEvent{
		ActorID:       e.ActorID,
		Action:        string(e.Action),
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Detail:        e.Detail,
		OriginAddress: origin,
	})
	if err != nil {
		s.fail(e, err)
		return false
	}
	return true
}

func (s *Sink) fail(e Event, err error) {
	metrics.AuditWriteFailuresTotal.WithLabelValues(string(e.Action)).Inc()
	s.logger.Error("audit write failed",
		"action", e.Action,
		"actor", e.ActorID,
		"resource", e.ResourceType+"/"+e.ResourceID,
		"error", err,
	)
}

// AuditTrail returns the events recorded against one resource, newest first.
func (s *Sink) AuditTrail(ctx context.Context, resourceType, resourceID string, limit int) ([]*store.AuditEvent, error) {
	events, err := s.store.ListAuditEvents(ctx, store.AuditFilter{
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing audit trail: %w", err)
	}
	return events, nil
}

// RecentLogs returns the newest events, optionally restricted to one action.
func (s *Sink) RecentLogs(ctx context.Context, limit int, action *Action) ([]*store.AuditEvent, error) {
	f := store.AuditFilter{Limit: limit}
	if action != nil {
		a := string(*action)
		f.Action = &a
	}

	events, err := s.store.ListAuditEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing recent audit events: %w", err)
	}
	return events, nil
}
