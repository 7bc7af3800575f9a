package auth

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IncrementLoginAttemptsSQL applies one failure in a single statement.
// The WHERE clause leaves locked rows alone, so a locked account never
// consumes a slot, and concurrent failures can not lose updates.
var IncrementLoginAttemptsSQL = `UPDATE "users"
SET
	"login_attempts" = "login_attempts" + 1,
	"is_locked" = CASE WHEN "login_attempts" + 1 >= ? THEN TRUE ELSE FALSE END,
	"login_attempt_at" = ?,
	"updated_at" = ?
WHERE
	"deleted_at" IS NULL
AND "is_locked" = FALSE
AND "email" = ?
RETURNING "login_attempts", "is_locked";`

var ResetLoginAttemptsSQL = `UPDATE "users"
SET
	"login_attempts" = 0,
	"is_locked" = FALSE,
	"login_attempt_at" = NULL,
	"loggedin_at" = ?,
	"updated_at" = ?
WHERE
	"deleted_at" IS NULL
AND "email" = ?;`

var UpdatePasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"deleted_at" IS NULL
AND "email" = ?;`

var CompletePasswordResetSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"login_attempts" = 0,
	"is_locked" = FALSE,
	"login_attempt_at" = NULL,
	"reseted_at" = ?,
	"updated_at" = ?
WHERE
	"deleted_at" IS NULL
AND "email" = ?;`

// UsersRepository is the bun backed UserDirectory
type UsersRepository struct {
	db  bun.IDB
	now func() time.Time
}

var _ UserDirectory = (*UsersRepository)(nil)

// NewUsersRepository creates a directory on top of db
func NewUsersRepository(db bun.IDB) *UsersRepository {
	return &UsersRepository{
		db:  db,
		now: time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (r *UsersRepository) WithClock(now func() time.Time) *UsersRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *UsersRepository) FindBySubject(ctx context.Context, subject string) (*User, error) {
	subject = NormalizeSubject(subject)
	record := &User{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", subject).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, withMeta(ErrIdentityNotFound, map[string]any{
				"subject": subject,
			})
		}
		return nil, dependencyError(err, "failed to find user")
	}

	return record, nil
}

// Create inserts user, failing with ErrSubjectAlreadyExists when the
// email is taken.
func (r *UsersRepository) Create(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	prepareUserDefaults(user, r.now())

	res, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (email) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, dependencyError(err, "failed to create user")
	}

	if affected(res) == 0 {
		return nil, withMeta(ErrSubjectAlreadyExists, map[string]any{
			"subject": user.Email,
		})
	}

	return user, nil
}

func (r *UsersRepository) IncrementLoginAttempts(ctx context.Context, subject string, threshold int) (LoginAttemptState, error) {
	if threshold <= 0 {
		threshold = DefaultLockThreshold
	}

	subject = NormalizeSubject(subject)

	// a row that is found unlocked after the UPDATE missed it was unlocked
	// concurrently, so the increment is tried once more
	for attempt := 0; ; attempt++ {
		now := r.now().UTC()
		state := LoginAttemptState{}

		err := r.db.NewRaw(IncrementLoginAttemptsSQL, threshold, now, now, subject).Scan(ctx, &state)
		if err == nil {
			// the row was unlocked before this statement, so a locked result
			// means we are the attempt that tripped it
			state.Tripped = state.Locked
			return state, nil
		}

		if !stderrors.Is(err, sql.ErrNoRows) {
			return state, dependencyError(err, "failed to increment login attempts")
		}

		// nothing updated: either the subject is gone or it is already locked
		user, ferr := r.FindBySubject(ctx, subject)
		if ferr != nil {
			return state, ferr
		}

		state = LoginAttemptState{Attempts: user.LoginAttempts, Locked: user.Locked}
		if user.Locked {
			return state, ErrAccountLocked
		}

		if attempt > 0 {
			return state, dependencyError(err, "login attempts changed concurrently")
		}
	}
}

func (r *UsersRepository) ResetLoginAttempts(ctx context.Context, subject string) error {
	now := r.now().UTC()
	_, err := r.db.NewRaw(ResetLoginAttemptsSQL, now, now, NormalizeSubject(subject)).Exec(ctx)
	if err != nil {
		return dependencyError(err, "failed to reset login attempts")
	}
	return nil
}

func (r *UsersRepository) UpdatePassword(ctx context.Context, subject, passwordHash string) error {
	subject = NormalizeSubject(subject)
	res, err := r.db.NewRaw(UpdatePasswordSQL, passwordHash, r.now().UTC(), subject).Exec(ctx)
	if err != nil {
		return dependencyError(err, "failed to update password")
	}
	if affected(res) == 0 {
		return withMeta(ErrIdentityNotFound, map[string]any{"subject": subject})
	}
	return nil
}

// CompletePasswordReset stores the new hash and unlocks the account
func (r *UsersRepository) CompletePasswordReset(ctx context.Context, subject, passwordHash string) error {
	subject = NormalizeSubject(subject)
	now := r.now().UTC()
	res, err := r.db.NewRaw(CompletePasswordResetSQL, passwordHash, now, now, subject).Exec(ctx)
	if err != nil {
		return dependencyError(err, "failed to complete password reset")
	}
	if affected(res) == 0 {
		return withMeta(ErrIdentityNotFound, map[string]any{"subject": subject})
	}
	return nil
}

func prepareUserDefaults(user *User, now time.Time) {
	user.Email = NormalizeSubject(user.Email)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	now = now.UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	if user.UpdatedAt == nil {
		user.UpdatedAt = &now
	}
}

// NormalizeSubject canonicalizes an email before it is used as a key
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
