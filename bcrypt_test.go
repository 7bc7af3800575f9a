package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	hasher := fastHasher()

	t.Run("round trip", func(t *testing.T) {
		hash, err := hasher.HashPassword("correct horse")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse", hash)

		assert.NoError(t, hasher.ComparePasswordAndHash("correct horse", hash))
	})

	t.Run("mismatch", func(t *testing.T) {
		hash, err := hasher.HashPassword("correct horse")
		require.NoError(t, err)

		err = hasher.ComparePasswordAndHash("battery staple", hash)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("salted", func(t *testing.T) {
		a, err := hasher.HashPassword("same")
		require.NoError(t, err)
		b, err := hasher.HashPassword("same")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := hasher.HashPassword("")
		assert.ErrorIs(t, err, auth.ErrNoEmptyString)
	})

	t.Run("invalid hash", func(t *testing.T) {
		err := hasher.ComparePasswordAndHash("anything", "not-a-hash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})
}

func TestRandomPassword(t *testing.T) {
	a := auth.RandomPassword()
	b := auth.RandomPassword()

	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 72)

	_, err := fastHasher().HashPassword(a)
	assert.NoError(t, err)
}
