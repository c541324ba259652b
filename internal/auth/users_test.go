package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chartguard/internal/store"
)

// fakeRevoker counts DestroyPrincipal calls.
type fakeRevoker struct {
	revoked []string
}

func (r *fakeRevoker) DestroyPrincipal(_ context.Context, principalID string) (int, error) {
	r.revoked = append(r.revoked, principalID)
	return 1, nil
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name   string
		in     NewUser
		reason ValidationReason
	}{
		{
			name:   "missing username",
			in:     NewUser{DisplayName: "X", Password: testPassword},
			reason: ReasonMalformedInput,
		},
		{
			name:   "username with space",
			in:     NewUser{Username: "al ice", DisplayName: "X", Password: testPassword},
			reason: ReasonMalformedInput,
		},
		{
			name:   "bad email",
			in:     NewUser{Username: "alice", Email: "not-an-email", DisplayName: "X", Password: testPassword},
			reason: ReasonMalformedInput,
		},
		{
			name:   "weak password",
			in:     NewUser{Username: "alice", DisplayName: "X", Password: "password"},
			reason: ReasonWeakPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			_, err := f.engine.CreateUser(context.Background(), "admin-1", tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.reason, ve.Reason)
			assert.NotEmpty(t, ve.Violations)
		})
	}
}

func TestCreateUser_WeakPasswordListsAllViolations(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.CreateUser(context.Background(), "admin-1", NewUser{
		Username: "alice", DisplayName: "Alice", Password: "abc",
	})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{"too_short", "missing_uppercase", "missing_digit", "missing_special_character"}, ve.Violations)
}

func TestCreateUser_Duplicates(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.createUser(t, "alice")

	_, err := f.engine.CreateUser(ctx, "admin-1", NewUser{
		Username: "alice", DisplayName: "Another", Password: testPassword,
	})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonDuplicateUsername, ve.Reason)

	_, err = f.engine.CreateUser(ctx, "admin-1", NewUser{
		Username: "bob", Email: "ALICE@clinic.example", DisplayName: "Bob", Password: testPassword,
	})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonDuplicateEmail, ve.Reason, "emails compare case-insensitively")
}

func TestCreateUser_Audited(t *testing.T) {
	f := newEngineFixture(t)
	p := f.createUser(t, "alice")

	events := f.store.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "user_created", events[0].Action)
	assert.Equal(t, p.ID, events[0].ResourceID)
	assert.Equal(t, "admin-1", events[0].ActorID)
}

func TestChangePassword_SelfService(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "alice")

	wrong := "not-it"
	err := f.engine.ChangePassword(ctx, p.ID, p.ID, "N3w-Password!", &wrong)
	assert.ErrorIs(t, err, ErrCurrentPasswordIncorrect)

	current := testPassword
	require.NoError(t, f.engine.ChangePassword(ctx, p.ID, p.ID, "N3w-Password!", &current))

	_, err = f.engine.Authenticate(ctx, "alice", "N3w-Password!")
	assert.NoError(t, err)
	assert.Contains(t, f.actions(), "password_changed")
}

func TestChangePassword_StrengthCheckedFirst(t *testing.T) {
	f := newEngineFixture(t)
	p := f.createUser(t, "alice")

	wrong := "not-it"
	err := f.engine.ChangePassword(context.Background(), p.ID, p.ID, "weak", &wrong)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonWeakPassword, ve.Reason)
}

func TestChangePassword_AdminResetClearsLockout(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "alice")

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Authenticate(ctx, "alice", "wrong")
	}
	require.NoError(t, f.engine.ChangePassword(ctx, "admin-1", p.ID, "R3set-Password!", nil))

	stored, err := f.store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
	assert.NotEqual(t, p.PasswordHash, stored.PasswordHash)

	_, err = f.engine.Authenticate(ctx, "alice", "R3set-Password!")
	assert.NoError(t, err)
}

func TestSetRoles_AuditsBeforeAndAfter(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "alice")

	require.NoError(t, f.engine.SetRoles(ctx, "admin-1", p.ID, store.Roles{Supervisor: true}))

	stored, err := f.store.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Roles{Supervisor: true}, stored.Roles)

	events := f.store.AuditEvents()
	last := events[len(events)-1]
	assert.Equal(t, "role_change", last.Action)
	assert.Equal(t, []string{"provider"}, last.Detail["before"])
	assert.Equal(t, []string{"supervisor"}, last.Detail["after"])
}

func TestSetActive_DeactivationRevokesSessions(t *testing.T) {
	ms := store.NewMockStore()
	revoker := &fakeRevoker{}
	engine := NewEngine(ms, nil, testConfig(), WithSessionRevoker(revoker))
	ctx := context.Background()

	p, err := engine.CreateUser(ctx, "", NewUser{Username: "alice", DisplayName: "Alice", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, engine.SetActive(ctx, "admin-1", p.ID, false))
	assert.Equal(t, []string{p.ID}, revoker.revoked)

	require.NoError(t, engine.SetActive(ctx, "admin-1", p.ID, true))
	assert.Len(t, revoker.revoked, 1, "activation does not revoke")
}

func TestDeleteUser_EndsEdges(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	p := f.createUser(t, "alice")

	start := f.clock.Now().Add(-24 * time.Hour)
	require.NoError(t, f.store.CreateAssignment(ctx, &store.ClientAssignment{
		ProviderID: p.ID, ClientID: "c-1", RoleLabel: "clinician", StartedAt: start,
	}))

	require.NoError(t, f.engine.DeleteUser(ctx, "admin-1", p.ID))

	active, err := f.store.ActiveAssignments(ctx, p.ID, f.clock.Now().Add(1))
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.store.GetPrincipal(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrPrincipalNotFound)
	assert.Contains(t, f.actions(), "user_deleted")
}

func TestUpdateProfile(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	alice := f.createUser(t, "alice")
	f.createUser(t, "bob")

	require.NoError(t, f.engine.UpdateProfile(ctx, "admin-1", alice.ID, "Alice.New@Clinic.Example", "Alice N."))
	stored, err := f.store.GetPrincipal(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice.new@clinic.example", stored.Email)

	err = f.engine.UpdateProfile(ctx, "admin-1", alice.ID, "bob@clinic.example", "Alice")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonDuplicateEmail, ve.Reason)

	err = f.engine.UpdateProfile(ctx, "admin-1", alice.ID, "bad", "Alice")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonMalformedInput, ve.Reason)
}
