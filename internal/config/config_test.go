package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signingKey = "config-test-signing-key-0123456789abcdef"

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(map[string]string{
		"AUTH_SIGNING_KEY": signingKey,
	}))
	require.NoError(t, err)

	assert.Equal(t, signingKey, cfg.GetSigningKey())
	assert.Equal(t, auth.DefaultSessionTTL, cfg.GetSessionTTL())
	assert.Equal(t, auth.DefaultPasswordResetTTL, cfg.GetPasswordResetTTL())
	assert.Equal(t, auth.DefaultLockThreshold, cfg.GetLockThreshold())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
	assert.Equal(t, []string{"/login/oauth2/code"}, cfg.GetExemptPrefixes())
	assert.Equal(t, "memory", cfg.RevocationStore)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(map[string]string{
		"AUTH_SIGNING_KEY":     signingKey,
		"AUTH_SESSION_TTL":     "1h",
		"AUTH_LOCK_THRESHOLD":  "5",
		"AUTH_AUDIENCE":        "forum, admin ,",
		"AUTH_EXEMPT_PREFIXES": "/public,/login/oauth2/code",
		"REVOCATION_STORE":     "sql",
		"HTTP_ADDRESS":         "  :9090  ",
		"LOG_LEVEL":            "",
	}))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.LockThreshold)
	assert.Equal(t, []string{"forum", "admin"}, cfg.GetAudience())
	assert.Equal(t, []string{"/public", "/login/oauth2/code"}, cfg.ExemptPrefixes)
	assert.Equal(t, "sql", cfg.RevocationStore)
	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromLookup_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing signing key", env: map[string]string{}},
		{name: "short signing key", env: map[string]string{"AUTH_SIGNING_KEY": "short"}},
		{name: "bad duration", env: map[string]string{"AUTH_SIGNING_KEY": signingKey, "AUTH_SESSION_TTL": "forever"}},
		{name: "bad integer", env: map[string]string{"AUTH_SIGNING_KEY": signingKey, "AUTH_LOCK_THRESHOLD": "three"}},
		{name: "zero threshold", env: map[string]string{"AUTH_SIGNING_KEY": signingKey, "AUTH_LOCK_THRESHOLD": "0"}},
		{name: "unknown store", env: map[string]string{"AUTH_SIGNING_KEY": signingKey, "REVOCATION_STORE": "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromLookup(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_SIGNING_KEY="+signingKey+"\nAUTH_ISSUER=from-file\n"), 0o600))

	t.Setenv("AUTH_SIGNING_KEY", "")
	t.Setenv("AUTH_ISSUER", "")
	require.NoError(t, os.Unsetenv("AUTH_SIGNING_KEY"))
	require.NoError(t, os.Unsetenv("AUTH_ISSUER"))

	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.GetIssuer())
}
