package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RevocationsRepository is a RevocationStore backed by the revoked_tokens
// table. Rows outlive their expiry until Purge runs, so every read
// filters on expires_at.
type RevocationsRepository struct {
	db  bun.IDB
	now func() time.Time
}

var _ RevocationStore = (*RevocationsRepository)(nil)

func NewRevocationsRepository(db bun.IDB) *RevocationsRepository {
	return &RevocationsRepository{
		db:  db,
		now: time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (r *RevocationsRepository) WithClock(now func() time.Time) *RevocationsRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Revoke records token until now+ttl. Revoking twice keeps the first entry.
func (r *RevocationsRepository) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	_, err := r.RevokeIfAbsent(ctx, token, ttl)
	return err
}

// RevokeIfAbsent inserts the row and reports true only for the insert that
// created it. A stale row left behind by an earlier expiry is replaced.
func (r *RevocationsRepository) RevokeIfAbsent(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}

	now := r.now().UTC()
	record := &RevokedToken{
		TokenKey:  token,
		ExpiresAt: now.Add(ttl),
	}

	var claimed bool
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*RevokedToken)(nil)).
			Where("token_key = ?", token).
			Where("expires_at <= ?", now).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (token_key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		claimed = affected(res) == 1
		return nil
	})
	if err != nil {
		return false, dependencyError(err, "failed to store revoked token")
	}

	return claimed, nil
}

func (r *RevocationsRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.token_key = ?", token).
		Where("?TableAlias.expires_at > ?", r.now().UTC()).
		Exists(ctx)
	if err != nil {
		return false, dependencyError(err, "failed to check revoked token")
	}
	return exists, nil
}

// Purge deletes entries whose token has expired on its own
func (r *RevocationsRepository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("expires_at <= ?", r.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, dependencyError(err, "failed to purge revoked tokens")
	}
	return affected(res), nil
}
