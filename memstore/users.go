package memstore

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/google/uuid"
)

// Users is an in-process UserDirectory. One mutex guards the map, which
// makes every lockout transition atomic per subject.
type Users struct {
	mu    sync.Mutex
	users map[string]*auth.User
	now   func() time.Time
}

var _ auth.UserDirectory = (*Users)(nil)

// NewUsers creates an empty directory, optionally seeded
func NewUsers(seed ...*auth.User) *Users {
	u := &Users{
		users: make(map[string]*auth.User),
		now:   time.Now,
	}
	for _, user := range seed {
		if user == nil {
			continue
		}
		record := cloneUser(user)
		prepare(record, u.now())
		u.users[record.Email] = record
	}
	return u
}

// WithClock injects a custom clock (useful for tests).
func (u *Users) WithClock(now func() time.Time) *Users {
	if now != nil {
		u.now = now
	}
	return u
}

func (u *Users) FindBySubject(ctx context.Context, subject string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err, "context cancelled while looking up identity")
	}

	subject = auth.NormalizeSubject(subject)

	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[subject]
	if !ok || user.DeletedAt != nil {
		return nil, notFound(subject)
	}
	return cloneUser(user), nil
}

func (u *Users) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err, "context cancelled while creating identity")
	}

	record := cloneUser(user)
	prepare(record, u.now())

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.users[record.Email]; exists {
		return nil, auth.ErrSubjectAlreadyExists.Clone().WithMetadata(map[string]any{
			"subject": record.Email,
		})
	}

	u.users[record.Email] = record
	return cloneUser(record), nil
}

func (u *Users) IncrementLoginAttempts(ctx context.Context, subject string, threshold int) (auth.LoginAttemptState, error) {
	if err := ctx.Err(); err != nil {
		return auth.LoginAttemptState{}, transient(err, "context cancelled while recording login attempt")
	}

	subject = auth.NormalizeSubject(subject)

	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[subject]
	if !ok || user.DeletedAt != nil {
		return auth.LoginAttemptState{}, notFound(subject)
	}

	current := auth.LoginAttemptState{Attempts: user.LoginAttempts, Locked: user.Locked}
	next, err := auth.ApplyLoginFailure(current, threshold)
	if err != nil {
		return current, err
	}

	now := u.now().UTC()
	user.LoginAttempts = next.Attempts
	user.Locked = next.Locked
	user.LoginAttemptAt = &now
	user.UpdatedAt = &now

	return next, nil
}

func (u *Users) ResetLoginAttempts(ctx context.Context, subject string) error {
	return u.update(ctx, subject, func(user *auth.User, now time.Time) {
		reset := auth.ApplyLoginReset()
		user.LoginAttempts = reset.Attempts
		user.Locked = reset.Locked
		user.LoginAttemptAt = nil
		user.LoggedInAt = &now
	})
}

func (u *Users) UpdatePassword(ctx context.Context, subject, passwordHash string) error {
	return u.update(ctx, subject, func(user *auth.User, _ time.Time) {
		user.PasswordHash = passwordHash
	})
}

func (u *Users) CompletePasswordReset(ctx context.Context, subject, passwordHash string) error {
	return u.update(ctx, subject, func(user *auth.User, now time.Time) {
		reset := auth.ApplyLoginReset()
		user.PasswordHash = passwordHash
		user.LoginAttempts = reset.Attempts
		user.Locked = reset.Locked
		user.LoginAttemptAt = nil
		user.ResetedAt = &now
	})
}

func (u *Users) update(ctx context.Context, subject string, fn func(*auth.User, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return transient(err, "context cancelled while updating identity")
	}

	subject = auth.NormalizeSubject(subject)

	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[subject]
	if !ok || user.DeletedAt != nil {
		return notFound(subject)
	}

	now := u.now().UTC()
	fn(user, now)
	user.UpdatedAt = &now
	return nil
}

func prepare(user *auth.User, now time.Time) {
	user.Email = auth.NormalizeSubject(user.Email)
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

func cloneUser(user *auth.User) *auth.User {
	if user == nil {
		return &auth.User{}
	}
	out := *user
	out.Roles = user.RoleSet()
	return &out
}

func notFound(subject string) error {
	return auth.ErrIdentityNotFound.Clone().WithMetadata(map[string]any{
		"subject": subject,
	})
}
