package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevocationsRepository(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewRevocationsRepository(setupDB(t)).WithClock(clock.Now)

	revoked, err := repo.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "token-a", time.Hour))
	require.NoError(t, repo.Revoke(ctx, "token-a", time.Hour), "revoking twice is fine")
	require.NoError(t, repo.Revoke(ctx, "token-b", 10*time.Minute))
	require.NoError(t, repo.Revoke(ctx, "token-c", 0), "nothing to store")

	revoked, err = repo.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(ctx, "token-c")
	require.NoError(t, err)
	assert.False(t, revoked)

	clock.Advance(30 * time.Minute)

	revoked, err = repo.IsRevoked(ctx, "token-b")
	require.NoError(t, err)
	assert.False(t, revoked, "entries self expire")

	n, err := repo.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err = repo.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationsRepository_ClosedDB(t *testing.T) {
	db := setupDB(t)
	repo := auth.NewRevocationsRepository(db)
	require.NoError(t, db.Close())

	_, err := repo.IsRevoked(context.Background(), "token")
	require.Error(t, err)
	assert.True(t, auth.IsTransient(err))

	err = repo.Revoke(context.Background(), "token", time.Minute)
	assert.True(t, auth.IsTransient(err))
}

func TestRepositoryManager(t *testing.T) {
	ctx := context.Background()
	stores := auth.NewRepositoryManager(setupDB(t))

	require.NoError(t, stores.Validate())
	assert.NotPanics(t, stores.MustValidate)

	err := stores.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx auth.RepositoryManager) error {
		if _, err := tx.Users().Create(ctx, &auth.User{Email: "tx@forum.test", PasswordHash: "hash"}); err != nil {
			return err
		}
		return tx.Revocations().Revoke(ctx, "token-tx", time.Hour)
	})
	require.NoError(t, err)

	_, err = stores.Users().FindBySubject(ctx, "tx@forum.test")
	assert.NoError(t, err)

	sentinel := auth.ErrSubjectAlreadyExists
	err = stores.RunInTx(ctx, nil, func(ctx context.Context, tx auth.RepositoryManager) error {
		if _, err := tx.Users().Create(ctx, &auth.User{Email: "rollback@forum.test", PasswordHash: "hash"}); err != nil {
			return err
		}
		return sentinel
	})
	require.Error(t, err)

	_, err = stores.Users().FindBySubject(ctx, "rollback@forum.test")
	assert.True(t, auth.IsIdentityNotFound(err), "rolled back")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = stores.RunInTx(cctx, nil, func(context.Context, auth.RepositoryManager) error { return nil })
	assert.True(t, auth.IsTransient(err))
}

func TestRevocationsRepository_RevokeIfAbsent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := auth.NewRevocationsRepository(setupDB(t)).WithClock(clock.Now)

	claimed, err := repo.RevokeIfAbsent(ctx, "reset-token", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.RevokeIfAbsent(ctx, "reset-token", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim loses")

	clock.Advance(20 * time.Minute)

	claimed, err = repo.RevokeIfAbsent(ctx, "reset-token", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "an expired row does not block a new claim")

	revoked, err := repo.IsRevoked(ctx, "reset-token")
	require.NoError(t, err)
	assert.True(t, revoked)

	claimed, err = repo.RevokeIfAbsent(ctx, "other", 0)
	require.NoError(t, err)
	assert.False(t, claimed)
}
