package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chartguard/internal/metrics"
	"github.com/2389/chartguard/internal/store"
)

// panickingStore blows up on every append.
type panickingStore struct {
	store.AuditStore
}

func (panickingStore) AppendAuditEvent(context.Context, *store.AuditEvent) error {
	panic("disk on fire")
}

func failures(action Action) float64 {
	return testutil.ToFloat64(metrics.AuditWriteFailuresTotal.WithLabelValues(string(action)))
}

func TestSink_LogPersists(t *testing.T) {
	ms := store.NewMockStore()
	sink := NewSink(ms)
	ctx := WithOrigin(context.Background(), "192.0.2.10")

	ok := sink.Log(ctx, Event{
		Action:       ActionView,
		ResourceType: ResourceClient,
		ResourceID:   "c-1",
		ActorID:      "p-1",
		Detail:       map[string]any{"section": "notes"},
	})
	require.True(t, ok)

	events := ms.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "view", events[0].Action)
	assert.Equal(t, "192.0.2.10", events[0].OriginAddress, "origin taken from context")
	assert.Equal(t, "p-1", events[0].ActorID)
}

func TestSink_ExplicitOriginWins(t *testing.T) {
	ms := store.NewMockStore()
	sink := NewSink(ms)
	ctx := WithOrigin(context.Background(), "192.0.2.10")

	require.True(t, sink.Log(ctx, Event{Action: ActionLogout, ResourceType: ResourceSession, Origin: "198.51.100.1"}))
	assert.Equal(t, "198.51.100.1", ms.AuditEvents()[0].OriginAddress)
}

func TestSink_StoreUnavailable(t *testing.T) {
	ms := store.NewMockStore()
	ms.SetUnavailable(true)
	sink := NewSink(ms)

	before := failures(ActionExport)
	ok := sink.Log(context.Background(), Event{Action: ActionExport, ResourceType: ResourceClient, ResourceID: "c-1"})

	assert.False(t, ok)
	assert.Equal(t, before+1, failures(ActionExport))
}

func TestSink_RecoversPanic(t *testing.T) {
	sink := NewSink(panickingStore{})

	before := failures(ActionSign)
	var ok bool
	assert.NotPanics(t, func() {
		ok = sink.Log(context.Background(), Event{Action: ActionSign, ResourceType: ResourceClient})
	})
	assert.False(t, ok)
	assert.Equal(t, before+1, failures(ActionSign))
}

func TestSink_UnencodableDetail(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sink := NewSink(s)
	ok := sink.Log(context.Background(), Event{
		Action:       ActionEdit,
		ResourceType: ResourceClient,
		Detail:       map[string]any{"bad": make(chan int)},
	})
	assert.False(t, ok)
}

func TestSink_ReadBack(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sink := NewSink(s)
	ctx := context.Background()
	require.True(t, sink.Log(ctx, Event{Action: ActionView, ResourceType: ResourceClient, ResourceID: "c-1"}))
	require.True(t, sink.Log(ctx, Event{Action: ActionEdit, ResourceType: ResourceClient, ResourceID: "c-1"}))
	require.True(t, sink.Log(ctx, Event{Action: ActionView, ResourceType: ResourceClient, ResourceID: "c-2"}))

	trail, err := sink.AuditTrail(ctx, ResourceClient, "c-1", 10)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "edit", trail[0].Action, "newest first")

	view := ActionView
	recent, err := sink.RecentLogs(ctx, 10, &view)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	all, err := sink.RecentLogs(ctx, 0, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDiscard(t *testing.T) {
	assert.True(t, Discard.Log(context.Background(), Event{Action: ActionView}))
}

func TestOriginFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", OriginFromContext(context.Background()))
}
