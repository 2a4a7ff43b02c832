package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertUserByEmail_NewUserIsUser(t *testing.T) {
	s := newTestStore(t)

	u, err := s.UpsertUserByEmail(context.Background(), "new@contoso.com", "New Person")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, "New Person", u.Name)
	assert.NotEmpty(t, u.ID)
}

func TestUpsertUserByEmail_PreservesRoleAndID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUserByEmail(ctx, "x@contoso.com", "Old")
	require.NoError(t, err)

	_, err = s.UpdateRoles(ctx, []RoleChange{{UserID: first.ID, Role: RoleAdmin}})
	require.NoError(t, err)

	again, err := s.UpsertUserByEmail(ctx, "x@contoso.com", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, RoleAdmin, again.Role)
	assert.Equal(t, "Renamed", again.Name)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	advance := fixedClock(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	seedUser(t, s, "old@contoso.com")
	advance(time.Hour)
	seedUser(t, s, "new@contoso.com")

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "new@contoso.com", users[0].Email)
	assert.Equal(t, "old@contoso.com", users[1].Email)
}

func TestUpdateRoles_InvalidRoleRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedUser(t, s, "a@contoso.com")
	b := seedUser(t, s, "b@contoso.com")

	_, err := s.UpdateRoles(ctx, []RoleChange{
		{UserID: a.ID, Role: RoleMod},
		{UserID: b.ID, Role: "ROOT"},
	})
	require.Error(t, err)

	got, err := s.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, got.Role, "first change must be rolled back")
}

func TestUpdateRoles_CountsUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedUser(t, s, "a@contoso.com")

	n, err := s.UpdateRoles(ctx, []RoleChange{
		{UserID: a.ID, Role: RoleMod},
		{UserID: "ghost", Role: RoleMod},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteUsers_CascadesAccountsAndChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	keep := seedUser(t, s, "keep@contoso.com")
	gone := seedUser(t, s, "gone@contoso.com")

	require.NoError(t, s.UpsertAccount(ctx, Account{UserID: gone.ID, ProviderID: "microsoft", AccountID: "oid-g"}))
	require.NoError(t, s.TouchSession(ctx, "s-gone", gone.ID))
	require.NoError(t, s.AppendMessage(ctx, "s-gone", "human", "hi"))
	require.NoError(t, s.TouchSession(ctx, "s-keep", keep.ID))

	n, err := s.DeleteUsers(ctx, []string{gone.ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.FindAccount(ctx, "microsoft", "oid-g")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSession(ctx, "s-gone")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSession(ctx, "s-keep")
	assert.NoError(t, err)
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleUser, RoleMod, RoleAdmin} {
		assert.True(t, ValidRole(r), r)
	}

	assert.False(t, ValidRole("admin"))
	assert.False(t, ValidRole(""))
}
