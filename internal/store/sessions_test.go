// ABOUTME: Tests for session row store operations
// ABOUTME: Covers upsert semantics, touch, principal revocation, and idle cleanup

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_UpsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)

	sess := &Session{
		ID:           "sess-1",
		Payload:      []byte(`{"k":"v"}`),
		CreatedAt:    created,
		LastActivity: created,
	}
	require.NoError(t, store.UpsertSession(ctx, sess))

	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "", got.PrincipalID)
	assert.Equal(t, `{"k":"v"}`, string(got.Payload))

	// second upsert replaces payload and principal but keeps created_at
	later := time.Now().UTC()
	require.NoError(t, store.UpsertSession(ctx, &Session{
		ID:           "sess-1",
		PrincipalID:  "p-1",
		Payload:      []byte(`{}`),
		CreatedAt:    later,
		LastActivity: later,
	}))

	got, err = store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.PrincipalID)
	assert.Equal(t, `{}`, string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.LastActivity.Equal(later))
}

func TestSessionStore_NilPayload(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s", CreatedAt: now, LastActivity: now}))
	got, err := store.GetSession(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestSessionStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_Touch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s", CreatedAt: start, LastActivity: start}))

	now := time.Now().UTC()
	require.NoError(t, store.TouchSession(ctx, "s", now))
	got, err := store.GetSession(ctx, "s")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(now))

	// touching a missing row is a no-op
	assert.NoError(t, store.TouchSession(ctx, "missing", now))
}

func TestSessionStore_DeleteIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s", CreatedAt: now, LastActivity: now}))

	require.NoError(t, store.DeleteSession(ctx, "s"))
	require.NoError(t, store.DeleteSession(ctx, "s"))

	_, err := store.GetSession(ctx, "s")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_DeleteForPrincipal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, principal := range []string{"p-1", "p-1", "p-2"} {
		require.NoError(t, store.UpsertSession(ctx, &Session{
			ID: generateTestID("s", i), PrincipalID: principal, CreatedAt: now, LastActivity: now,
		}))
	}

	n, err := store.DeleteSessionsForPrincipal(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.GetSession(ctx, generateTestID("s", 2))
	assert.NoError(t, err, "other principal's session survives")
}

func TestSessionStore_DeleteIdle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "stale", CreatedAt: now, LastActivity: now.Add(-9 * time.Hour)}))
	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "fresh", CreatedAt: now, LastActivity: now.Add(-time.Minute)}))

	n, err := store.DeleteIdleSessions(ctx, now.Add(-8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetSession(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}
