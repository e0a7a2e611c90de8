package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iot-measurement-backend/internal/database/dbtest"
	"iot-measurement-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupResets(t *testing.T) (*PasswordResetRepository, *models.User) {
	t.Helper()
	db := dbtest.NewTestDB(t)
	u := newUser("erin")
	require.NoError(t, NewUserRepo(db).Create(context.Background(), u))
	return NewPasswordResetRepo(db), u
}

func TestConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	repo, u := setupResets(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "t1", ExpiresAt: now.Add(15 * time.Minute)}))

	tok, err := repo.Consume(ctx, "t1", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, tok.UserID)
	require.NotNil(t, tok.UsedAt)

	_, err = repo.Consume(ctx, "t1", now)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindActiveByHash(ctx, "t1", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeRejectsExpired(t *testing.T) {
	ctx := context.Background()
	repo, u := setupResets(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "old", ExpiresAt: now.Add(-time.Second)}))

	_, err := repo.Consume(ctx, "old", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	repo, u := setupResets(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "race", ExpiresAt: now.Add(time.Minute)}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(ctx, "race", now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInvalidateAllUnusedForUserAndDeleteStale(t *testing.T) {
	ctx := context.Background()
	repo, u := setupResets(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "a", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "b", ExpiresAt: now.Add(time.Minute)}))

	n, err := repo.InvalidateAllUnusedForUser(ctx, u.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindActiveByHash(ctx, "a", now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Create(ctx, &models.PasswordResetToken{UserID: u.ID, TokenHash: "c", ExpiresAt: now.Add(time.Minute)}))
	n, err = repo.DeleteStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindActiveByHash(ctx, "c", now)
	assert.NoError(t, err)
}
