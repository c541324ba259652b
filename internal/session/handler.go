// ABOUTME: Pluggable session persistence contract and the session record type
// ABOUTME: Implementations must be last-write-wins and tolerate repeated destroys

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned by Handler.Read for an unknown or expired ID.
var ErrSessionNotFound = errors.New("session not found")

// idBytes is the entropy of a session ID before hex encoding.
const idBytes = 32

// Record is one persisted session.
type Record struct {
	ID           string
	PrincipalID  string // empty while anonymous
	Payload      []byte // JSON object
	CreatedAt    time.Time
	LastActivity time.Time
}

// Handler persists session records.
type Handler interface {
	Open(ctx context.Context) error
	Close() error

	// Read returns the record as stored and then refreshes its last activity.
	// The returned LastActivity is the value from before the refresh.
	Read(ctx context.Context, id string) (*Record, error)

	// Write inserts or replaces the record.
	Write(ctx context.Context, r *Record) error

	// Destroy removes the record; destroying a missing ID succeeds.
	Destroy(ctx context.Context, id string) error

	// DestroyPrincipal removes every record bound to the principal.
	DestroyPrincipal(ctx context.Context, principalID string) (int, error)

	// GC removes records idle for longer than maxAge.
	GC(ctx context.Context, maxAge time.Duration) (int, error)
}

// NewID returns a fresh session ID from crypto/rand.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
