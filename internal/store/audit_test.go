// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers append, filtered newest-first reads, actor names, and the append-only triggers

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := &AuditEvent{
		ActorID:       "principal-123",
		Action:        "view",
		ResourceType:  "client",
		ResourceID:    "c-1",
		Detail:        map[string]any{"section": "notes"},
		OriginAddress: "10.0.0.7",
	}

	require.NoError(t, store.AppendAuditEvent(ctx, event))

	// Should have generated ID and timestamp
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())

	events, err := store.ListAuditEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "notes", events[0].Detail["section"])
	assert.Equal(t, "10.0.0.7", events[0].OriginAddress)
	assert.Empty(t, events[0].ActorName, "unknown actor has no name")
}

func TestAuditStore_List_NewestFirstWithFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	actor := createTestPrincipal(t, store, "alice", Roles{Provider: true})

	base := time.Now().UTC().Add(-time.Hour)
	for i, action := range []string{"view", "edit", "view"} {
		require.NoError(t, store.AppendAuditEvent(ctx, &AuditEvent{
			ActorID:      actor.ID,
			Action:       action,
			ResourceType: "client",
			ResourceID:   generateTestID("c", i%2),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListAuditEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))
	assert.True(t, all[1].CreatedAt.After(all[2].CreatedAt))
	assert.Equal(t, "User alice", all[0].ActorName)

	action := "view"
	views, err := store.ListAuditEvents(ctx, AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Len(t, views, 2)

	rt, rid := "client", generateTestID("c", 0)
	trail, err := store.ListAuditEvents(ctx, AuditFilter{ResourceType: &rt, ResourceID: &rid})
	require.NoError(t, err)
	assert.Len(t, trail, 2)

	since := base.Add(90 * time.Second)
	recent, err := store.ListAuditEvents(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "view", recent[0].Action)

	limited, err := store.ListAuditEvents(ctx, AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAuditStore_SameTimestampKeepsAppendOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	for _, action := range []string{"first", "second"} {
		require.NoError(t, store.AppendAuditEvent(ctx, &AuditEvent{Action: action, ResourceType: "x", CreatedAt: at}))
	}

	events, err := store.ListAuditEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Action)
}

func TestAuditStore_AppendOnly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := &AuditEvent{Action: "view", ResourceType: "client", ResourceID: "c-1"}
	require.NoError(t, store.AppendAuditEvent(ctx, event))

	_, err := store.db.ExecContext(ctx, `UPDATE audit_log SET action = 'edit' WHERE id = ?`, event.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = store.db.ExecContext(ctx, `DELETE FROM audit_log WHERE id = ?`, event.ID)
	require.Error(t, err)

	events, err := store.ListAuditEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "view", events[0].Action)
}
