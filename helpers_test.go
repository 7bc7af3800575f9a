package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/memstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-that-is-32-bytes!!"

type testConfig struct {
	signingKey    string
	issuer        string
	audience      []string
	sessionTTL    time.Duration
	resetTTL      time.Duration
	lockThreshold int
	defaultRole   string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:    testSigningKey,
		issuer:        "forum-auth-test",
		audience:      []string{"forum"},
		lockThreshold: auth.DefaultLockThreshold,
	}
}

func (c *testConfig) GetSigningKey() string              { return c.signingKey }
func (c *testConfig) GetIssuer() string                  { return c.issuer }
func (c *testConfig) GetAudience() []string              { return c.audience }
func (c *testConfig) GetContextKey() string              { return "principal" }
func (c *testConfig) GetAuthScheme() string              { return "Bearer" }
func (c *testConfig) GetSessionTTL() time.Duration       { return c.sessionTTL }
func (c *testConfig) GetPasswordResetTTL() time.Duration { return c.resetTTL }
func (c *testConfig) GetLockThreshold() int              { return c.lockThreshold }
func (c *testConfig) GetDefaultRole() string             { return c.defaultRole }
func (c *testConfig) GetResetLinkBase() string           { return "http://forum.test/reset" }
func (c *testConfig) GetExternalRedirectURL() string     { return "" }
func (c *testConfig) GetExemptPrefixes() []string        { return nil }

// testClock is a settable clock shared by the service and the stores
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

func fastHasher() auth.BcryptHasher {
	return auth.BcryptHasher{Cost: bcrypt.MinCost}
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := fastHasher().HashPassword(password)
	require.NoError(t, err)
	return hash
}

type fixture struct {
	service     *auth.TokenService
	users       *memstore.Users
	revocations *memstore.Revocations
	clock       *testClock
	sink        *capturingSink
}

func newFixture(t *testing.T, seed ...*auth.User) *fixture {
	t.Helper()

	clock := newTestClock()
	users := memstore.NewUsers(seed...).WithClock(clock.Now)

	revocations, err := memstore.NewRevocations(memstore.DefaultRevocationsConfig())
	require.NoError(t, err)
	revocations.WithClock(clock.Now)
	t.Cleanup(revocations.Close)

	sink := &capturingSink{}
	service := auth.NewTokenService(newTestConfig(), users, revocations).
		WithHasher(fastHasher()).
		WithLogger(auth.NopLogger{}).
		WithActivitySink(sink).
		WithClock(clock.Now)

	return &fixture{
		service:     service,
		users:       users,
		revocations: revocations,
		clock:       clock,
		sink:        sink,
	}
}
