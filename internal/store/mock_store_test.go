// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on uniqueness, soft deletion, edge activity, and the unavailable switch

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_DuplicateUsername(t *testing.T) {
	store := NewMockStore()
	createTestPrincipal(t, store, "alice", Roles{})

	now := time.Now().UTC()
	err := store.CreatePrincipal(context.Background(), &Principal{
		ID: "other", Username: "alice", DisplayName: "x", Active: true, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	p := createTestPrincipal(t, store, "alice", Roles{})

	got, err := store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	got.DisplayName = "mutated"

	again, err := store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "User alice", again.DisplayName)
}

func TestMockStore_SoftDeleteHidesPrincipal(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	p := createTestPrincipal(t, store, "alice", Roles{})

	require.NoError(t, store.SoftDeletePrincipal(ctx, p.ID, time.Now()))
	_, err := store.GetPrincipalByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestMockStore_SupervisedAssignment(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.CreateSupervision(ctx, &SupervisionEdge{SupervisorID: "sup", SuperviseeID: "ivy", StartedAt: start}))
	require.NoError(t, store.CreateAssignment(ctx, &ClientAssignment{ProviderID: "ivy", ClientID: "c-1", RoleLabel: "intern", StartedAt: start}))

	ok, err := store.SupervisedAssignmentExists(ctx, "sup", "c-1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.EndEdgesForPrincipal(ctx, "ivy", time.Now()))
	ok, err = store.SupervisedAssignmentExists(ctx, "sup", "c-1", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockStore_Unavailable(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	store.SetUnavailable(true)
	assert.ErrorIs(t, store.Ping(ctx), ErrUnavailable)
	assert.ErrorIs(t, store.AppendAuditEvent(ctx, &AuditEvent{Action: "view"}), ErrUnavailable)
	_, err := store.GetSession(ctx, "s")
	assert.ErrorIs(t, err, ErrUnavailable)

	store.SetUnavailable(false)
	assert.NoError(t, store.Ping(ctx))
}

func TestMockStore_AuditNewestFirst(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, action := range []string{"a", "b", "c"} {
		require.NoError(t, store.AppendAuditEvent(ctx, &AuditEvent{
			Action: action, ResourceType: "x", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := store.ListAuditEvents(ctx, AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].Action)
	assert.Equal(t, "b", events[1].Action)
	assert.Len(t, store.AuditEvents(), 3)
}
