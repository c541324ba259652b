package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/metrics"
	"github.com/2389/chartguard/internal/store"
)

type managerFixture struct {
	manager *Manager
	store   *store.MockStore
	clock   *fakeClock
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	ms := store.NewMockStore()
	clock := newFakeClock()
	m := NewManager(NewSQLHandler(ms, clock.Now),
		WithClock(clock.Now),
		WithLifetime(8*time.Hour),
		WithAuditLogger(audit.NewSink(ms)),
	)
	return &managerFixture{manager: m, store: ms, clock: clock}
}

func activePrincipal(id string) *store.Principal {
	return &store.Principal{ID: id, Username: id, Active: true}
}

func TestManager_StartEmptyIsAnonymous(t *testing.T) {
	f := newManagerFixture(t)

	sc, err := f.manager.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, sc.ID(), 64)
	assert.False(t, sc.IsAuthenticated())
	_, ok := sc.UserID()
	assert.False(t, ok)
}

func TestManager_UnknownIDIsNotAdopted(t *testing.T) {
	f := newManagerFixture(t)

	sc, err := f.manager.Start(context.Background(), "attacker-chosen")
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sc.ID())
}

func TestContext_SaveAndResume(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sc, err := f.manager.Start(ctx, "")
	require.NoError(t, err)
	sc.Set("return_to", "/clients/42")
	sc.Set("count", 3)
	require.NoError(t, sc.Save(ctx))

	resumed, err := f.manager.Start(ctx, sc.ID())
	require.NoError(t, err)
	assert.Equal(t, sc.ID(), resumed.ID())

	v, ok := resumed.Get("return_to")
	require.True(t, ok)
	assert.Equal(t, "/clients/42", v)

	n, ok := resumed.Get("count")
	require.True(t, ok)
	assert.Equal(t, float64(3), n)

	resumed.Delete("count")
	_, ok = resumed.Get("count")
	assert.False(t, ok)
}

func TestContext_LoginRegeneratesID(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sc, err := f.manager.Start(ctx, "")
	require.NoError(t, err)
	sc.Set("pre_login", true)
	require.NoError(t, sc.Save(ctx))
	before := sc.ID()

	require.NoError(t, sc.Login(ctx, activePrincipal("p-1")))
	assert.NotEqual(t, before, sc.ID())

	uid, ok := sc.UserID()
	require.True(t, ok)
	assert.Equal(t, "p-1", uid)

	// the pre-login ID is dead
	_, err = f.store.GetSession(ctx, before)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	resumed, err := f.manager.Start(ctx, sc.ID())
	require.NoError(t, err)
	assert.True(t, resumed.IsAuthenticated())
	v, _ := resumed.Get("pre_login")
	assert.Equal(t, true, v)
}

func TestContext_LoginRejectsInactive(t *testing.T) {
	f := newManagerFixture(t)
	sc, err := f.manager.Start(context.Background(), "")
	require.NoError(t, err)

	p := activePrincipal("p-1")
	p.Active = false
	assert.ErrorIs(t, sc.Login(context.Background(), p), ErrInvalidPrincipal)
	assert.ErrorIs(t, sc.Login(context.Background(), nil), ErrInvalidPrincipal)
	assert.False(t, sc.IsAuthenticated())
}

func TestContext_LogoutIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sc, err := f.manager.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, sc.Login(ctx, activePrincipal("p-1")))
	sc.Set("secret", "x")
	loggedInID := sc.ID()

	require.NoError(t, sc.Logout(ctx))
	assert.False(t, sc.IsAuthenticated())
	assert.NotEqual(t, loggedInID, sc.ID())
	_, ok := sc.Get("secret")
	assert.False(t, ok)

	require.NoError(t, sc.Logout(ctx))
	assert.False(t, sc.IsAuthenticated())

	var logouts int
	for _, e := range f.store.AuditEvents() {
		if e.Action == string(audit.ActionLogout) {
			logouts++
		}
	}
	assert.Equal(t, 1, logouts, "only the first logout is audited")

	resumed, err := f.manager.Start(ctx, loggedInID)
	require.NoError(t, err)
	assert.False(t, resumed.IsAuthenticated())
}

func TestManager_IdleExpiryWithoutGC(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sc, err := f.manager.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, sc.Login(ctx, activePrincipal("p-1")))
	id := sc.ID()

	f.clock.Advance(7 * time.Hour)
	resumed, err := f.manager.Start(ctx, id)
	require.NoError(t, err)
	assert.True(t, resumed.IsAuthenticated(), "within lifetime")

	// activity was refreshed at the 7h mark, so another 7h is still fine
	f.clock.Advance(7 * time.Hour)
	resumed, err = f.manager.Start(ctx, id)
	require.NoError(t, err)
	assert.True(t, resumed.IsAuthenticated())

	f.clock.Advance(8*time.Hour + time.Second)
	expired, err := f.manager.Start(ctx, id)
	require.NoError(t, err)
	assert.False(t, expired.IsAuthenticated())
	assert.NotEqual(t, id, expired.ID())

	_, err = f.store.GetSession(ctx, id)
	assert.ErrorIs(t, err, store.ErrSessionNotFound, "expired row destroyed on resume")
}

func TestManager_RevokePrincipal(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		sc, err := f.manager.Start(ctx, "")
		require.NoError(t, err)
		require.NoError(t, sc.Login(ctx, activePrincipal("p-1")))
		ids = append(ids, sc.ID())
	}

	before := testutil.ToFloat64(metrics.SessionsRevokedTotal)
	n, err := f.manager.RevokePrincipal(ctx, "admin-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.SessionsRevokedTotal))

	for _, id := range ids {
		sc, err := f.manager.Start(ctx, id)
		require.NoError(t, err)
		assert.False(t, sc.IsAuthenticated())
	}

	events := f.store.AuditEvents()
	last := events[len(events)-1]
	assert.Equal(t, "session_revoked", last.Action)
	assert.Equal(t, "admin-1", last.ActorID)
}

func TestManager_Collect(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	sc, err := f.manager.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, sc.Save(ctx))

	f.clock.Advance(9 * time.Hour)

	before := testutil.ToFloat64(metrics.SessionsCollectedTotal)
	n, err := f.manager.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionsCollectedTotal))
}

func TestManager_StoreUnavailable(t *testing.T) {
	f := newManagerFixture(t)
	f.store.SetUnavailable(true)

	_, err := f.manager.Start(context.Background(), "some-id")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestManager_CorruptPayloadDiscarded(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	require.NoError(t, f.store.UpsertSession(ctx, &store.Session{
		ID: "bad", PrincipalID: "p-1", Payload: []byte("not json"), CreatedAt: now, LastActivity: now,
	}))

	sc, err := f.manager.Start(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, sc.IsAuthenticated())
	assert.NotEqual(t, "bad", sc.ID())
}
