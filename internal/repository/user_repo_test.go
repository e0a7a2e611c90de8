package repository

import (
	"context"
	"testing"
	"time"

	"iot-measurement-backend/internal/database/dbtest"
	"iot-measurement-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(username string) *models.User {
	return &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         models.RoleUser,
	}
}

func TestUserRepositoryLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(dbtest.NewTestDB(t))

	u := newUser("alice")
	require.NoError(t, repo.Create(ctx, u))
	require.NotZero(t, u.ID)

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.False(t, byID.EmailVerified)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepositoryDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(dbtest.NewTestDB(t))

	require.NoError(t, repo.Create(ctx, newUser("alice")))

	dup := newUser("alice")
	dup.Email = "other@example.com"
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)
}

func TestUserRepositoryUpdatePasswordAndLastLogin(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(dbtest.NewTestDB(t))

	u := newUser("bob")
	require.NoError(t, repo.Create(ctx, u))

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "new-hash"))
	now := time.Now().UTC()
	require.NoError(t, repo.TouchLastLogin(ctx, u.ID, now))

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, now, *got.LastLoginAt, time.Second)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, 9999, "x"), ErrNotFound)
}

func TestUserRepositoryDeleteWithTokens(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewTestDB(t)
	users := NewUserRepo(db)
	refresh := NewRefreshTokenRepo(db)
	resets := NewPasswordResetRepo(db)

	u := newUser("carol")
	require.NoError(t, users.Create(ctx, u))
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, refresh.Create(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "r1", ExpiresAt: exp}))
	require.NoError(t, resets.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "p1", ExpiresAt: exp}))

	require.NoError(t, users.DeleteWithTokens(ctx, u.ID))

	_, err := users.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = refresh.FindByHash(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = resets.FindActiveByHash(ctx, "p1", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, users.DeleteWithTokens(ctx, u.ID), ErrNotFound)
}
