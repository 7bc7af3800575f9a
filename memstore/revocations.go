package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
)

const revokedKeyPrefix = "revoked:"

// RevocationsConfig sizes the underlying cache
type RevocationsConfig struct {
	// MaxEntries is the number of live revocations kept. Once reached new
	// revocations fail with ErrDependencyUnavailable until entries expire.
	MaxEntries int64
	// NumCounters is the number of keys tracked for admission, ~10x MaxEntries
	NumCounters int64
}

// DefaultRevocationsConfig fits a single node forum
func DefaultRevocationsConfig() RevocationsConfig {
	return RevocationsConfig{
		MaxEntries:  1 << 20,
		NumCounters: 1e7,
	}
}

// Revocations is a RevocationStore on top of ristretto. Entries expire
// with the token they revoke. Every entry costs exactly 1 and the store
// refuses writes before ristretto would have to evict, so an accepted
// revocation holds until its TTL.
type Revocations struct {
	cache      *ristretto.Cache[string, time.Time]
	maxEntries int64
	live       atomic.Int64
	mu         sync.Mutex
	now        func() time.Time
}

var _ auth.RevocationStore = (*Revocations)(nil)

// NewRevocations creates the store
func NewRevocations(cfg RevocationsConfig) (*Revocations, error) {
	def := DefaultRevocationsConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = cfg.MaxEntries * 10
	}

	r := &Revocations{
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, time.Time]{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
		// runs for every entry ristretto lets go of
		OnExit: func(time.Time) { r.live.Add(-1) },
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to initialize revocation cache")
	}
	r.cache = cache

	return r, nil
}

// WithClock injects a custom clock (useful for tests).
func (r *Revocations) WithClock(now func() time.Time) *Revocations {
	if now != nil {
		r.now = now
	}
	return r
}

// Revoke stores token for ttl. A set the cache cannot hold is reported as
// a transient failure, a revoke is never dropped silently.
func (r *Revocations) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	_, err := r.RevokeIfAbsent(ctx, token, ttl)
	return err
}

// RevokeIfAbsent stores token for ttl unless a live entry exists. Only
// one of many concurrent callers for the same token gets true.
func (r *Revocations) RevokeIfAbsent(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, transient(err, "context cancelled while revoking token")
	}

	if ttl <= 0 {
		return false, nil
	}

	key := revokedKeyPrefix + token

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.cache.Get(key); ok && existing.After(now) {
		return false, nil
	}

	if r.live.Load() >= r.maxEntries {
		return false, transient(nil, "revocation cache is full").
			WithMetadata(map[string]any{"max_entries": r.maxEntries})
	}

	r.live.Add(1)
	if !r.cache.SetWithTTL(key, now.Add(ttl), 1, ttl) {
		r.live.Add(-1)
		return false, transient(nil, "revocation cache rejected entry")
	}
	r.cache.Wait()

	if _, ok := r.cache.Get(key); !ok {
		return false, transient(nil, "revocation cache dropped entry")
	}

	return true, nil
}

// Len returns the number of entries counted against MaxEntries
func (r *Revocations) Len() int64 {
	return r.live.Load()
}

func (r *Revocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, transient(err, "context cancelled while checking revocation")
	}

	expiresAt, ok := r.cache.Get(revokedKeyPrefix + token)
	if !ok {
		return false, nil
	}

	return expiresAt.After(r.now()), nil
}

// Close releases the cache goroutines
func (r *Revocations) Close() {
	r.cache.Close()
}

func transient(err error, msg string) *errors.Error {
	if err == nil {
		return errors.New(msg, errors.CategoryOperation).
			WithTextCode(auth.TextCodeDependencyUnavailable).
			WithCode(auth.ErrDependencyUnavailable.Code)
	}
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithTextCode(auth.TextCodeDependencyUnavailable).
		WithCode(auth.ErrDependencyUnavailable.Code)
}
