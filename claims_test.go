package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
)

func TestTokenPurpose_Valid(t *testing.T) {
	assert.True(t, auth.PurposeSession.Valid())
	assert.True(t, auth.PurposePasswordReset.Valid())
	assert.False(t, auth.TokenPurpose("").Valid())
	assert.False(t, auth.TokenPurpose("session").Valid())
	assert.Equal(t, "PASSWORD_RESET", auth.PurposePasswordReset.String())
}

func TestAuthorities(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		encoded string
		decoded []string
	}{
		{name: "empty", roles: nil, encoded: "", decoded: []string{}},
		{name: "single", roles: []string{"USER"}, encoded: "ROLE_USER", decoded: []string{"USER"}},
		{
			name:    "many",
			roles:   []string{"USER", "ADMIN"},
			encoded: "ROLE_USER,ROLE_ADMIN",
			decoded: []string{"USER", "ADMIN"},
		},
		{
			name:    "already prefixed and blanks",
			roles:   []string{"ROLE_MODERATOR", " ", ""},
			encoded: "ROLE_MODERATOR",
			decoded: []string{"MODERATOR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := auth.EncodeAuthorities(tt.roles)
			assert.Equal(t, tt.encoded, encoded)
			assert.Equal(t, tt.decoded, auth.DecodeAuthorities(encoded))
		})
	}
}

func TestJWTClaims_Accessors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user@forum.test",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TokenPurpose: auth.PurposeSession,
		Authorities:  "ROLE_USER,ROLE_ADMIN",
	}

	assert.Equal(t, "jti-1", claims.TokenID())
	assert.Equal(t, "user@forum.test", claims.Subject())
	assert.True(t, claims.HasRole(auth.RoleAdmin))
	assert.False(t, claims.HasRole(auth.RoleModerator))
	assert.Equal(t, time.Hour, claims.RemainingLifetime(now))
	assert.Equal(t, 10*time.Minute, claims.RemainingLifetime(now.Add(50*time.Minute)))
	assert.Zero(t, claims.RemainingLifetime(now.Add(time.Hour)))
	assert.Zero(t, claims.RemainingLifetime(now.Add(2*time.Hour)))

	empty := &auth.JWTClaims{}
	assert.True(t, empty.Expires().IsZero())
	assert.True(t, empty.IssuedAt().IsZero())
	assert.True(t, empty.NotBefore().IsZero())
	assert.Zero(t, empty.RemainingLifetime(now))
}
