package services

import (
	"testing"

	"loyalty-draw-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserUpsertKeepsLocalID(t *testing.T) {
	svc := NewUserService(setupServicesDB(t))

	first, err := svc.Upsert(t.Context(), "ext-1", "Aki")
	require.NoError(t, err)
	second, err := svc.Upsert(t.Context(), " ext-1 ", "Aki Tanaka")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Aki Tanaka", second.Nickname)

	_, err = svc.ByExternalID(t.Context(), "ext-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkWalletMovesAddress(t *testing.T) {
	db := setupServicesDB(t)
	svc := NewUserService(db)
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	require.NoError(t, svc.LinkWallet(t.Context(), "alice", "0xabc"))
	require.NoError(t, svc.LinkWallet(t.Context(), "alice", "0xabc"))
	require.NoError(t, svc.LinkWallet(t.Context(), "bob", "0xabc"))

	alice, err := svc.ByExternalID(t.Context(), "alice")
	require.NoError(t, err)
	assert.Nil(t, alice.Wallet)
	bob, err := svc.ByExternalID(t.Context(), "bob")
	require.NoError(t, err)
	require.NotNil(t, bob.Wallet)
	assert.Equal(t, "0xabc", *bob.Wallet)

	assert.ErrorIs(t, svc.LinkWallet(t.Context(), "carol", "0xdef"), ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	db := setupServicesDB(t)
	svc := NewUserService(db)
	for _, name := range []string{"Hana", "hanako", "Kenji"} {
		require.NoError(t, db.Create(&models.User{ExternalUserID: "ext-" + name, Nickname: name}).Error)
	}

	users, err := svc.SearchUsers(t.Context(), "HANA", 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = svc.SearchUsers(t.Context(), "", 1)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
