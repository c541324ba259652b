// ABOUTME: Per-request session surface: key/value data, login binding, logout, regeneration
// ABOUTME: Login always moves to a fresh ID so a pre-login ID cannot be fixated

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/store"
)

// ErrInvalidPrincipal is returned by Login for a nil, inactive, or deleted principal.
var ErrInvalidPrincipal = errors.New("principal cannot hold a session")

// Context is one request's view of a session. It is not safe for concurrent
// use; each request gets its own from Manager.Start.
type Context struct {
	m           *Manager
	id          string
	principalID string
	data        map[string]any
	createdAt   time.Time
}

// ID returns the current session ID.
func (c *Context) ID() string {
	return c.id
}

// Get returns a stored value. Values round-trip through JSON, so numbers
// read back from a resumed session are float64.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Set stores a value; call Save to persist.
func (c *Context) Set(key string, value any) {
	c.data[key] = value
}

// Delete removes a value; call Save to persist.
func (c *Context) Delete(key string) {
	delete(c.data, key)
}

// IsAuthenticated reports whether a principal is bound.
func (c *Context) IsAuthenticated() bool {
	return c.principalID != ""
}

// UserID returns the bound principal ID.
func (c *Context) UserID() (string, bool) {
	return c.principalID, c.principalID != ""
}

// Login binds p to the session under a fresh ID and persists it. The old row
// is destroyed.
func (c *Context) Login(ctx context.Context, p *store.Principal) error {
	if p == nil || !p.Active || p.IsDeleted() {
		return ErrInvalidPrincipal
	}

	prev := c.principalID
	c.principalID = p.ID
	if err := c.Regenerate(ctx); err != nil {
		c.principalID = prev
		return err
	}
	return nil
}

// Logout destroys the session row, clears data, and switches to a fresh
// anonymous ID. Logging out an anonymous session is a no-op success.
func (c *Context) Logout(ctx context.Context) error {
	if err := c.m.handler.Destroy(ctx, c.id); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}

	if c.principalID != "" {
		c.m.audit.Log(ctx, audit.Event{
			Action:       audit.ActionLogout,
			ResourceType: audit.ResourceSession,
			ActorID:      c.principalID,
			ResourceID:   c.principalID,
		})
		c.m.logger.Info("logged out", "principal_id", c.principalID)
	}

	id, err := NewID()
	if err != nil {
		return err
	}
	c.id = id
	c.principalID = ""
	c.data = map[string]any{}
	c.createdAt = c.m.now().UTC()
	return nil
}

// Regenerate moves the session to a fresh ID, persisting it under the new ID
// before destroying the old row.
func (c *Context) Regenerate(ctx context.Context) error {
	oldID := c.id
	id, err := NewID()
	if err != nil {
		return err
	}
	c.id = id

	if err := c.Save(ctx); err != nil {
		c.id = oldID
		return err
	}
	if err := c.m.handler.Destroy(ctx, oldID); err != nil {
		return fmt.Errorf("destroying previous session: %w", err)
	}
	return nil
}

// Save writes the session. Concurrent saves of the same ID are last-write-wins.
func (c *Context) Save(ctx context.Context) error {
	payload, err := json.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("encoding session data: %w", err)
	}

	err = c.m.handler.Write(ctx, &Record{
		ID:           c.id,
		PrincipalID:  c.principalID,
		Payload:      payload,
		CreatedAt:    c.createdAt,
		LastActivity: c.m.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func decodePayload(payload []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(payload) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
