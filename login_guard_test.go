package auth_test

import (
	"context"
	stderrors "errors"
	"testing"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTracker implements auth.LoginAttemptTracker for testing
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) IncrementLoginAttempts(ctx context.Context, subject string, threshold int) (auth.LoginAttemptState, error) {
	args := m.Called(ctx, subject, threshold)
	return args.Get(0).(auth.LoginAttemptState), args.Error(1)
}

func (m *MockTracker) ResetLoginAttempts(ctx context.Context, subject string) error {
	args := m.Called(ctx, subject)
	return args.Error(0)
}

// plainIdentity is an Identity that does not expose a failure counter
type plainIdentity struct {
	subject string
}

func (p plainIdentity) Subject() string { return p.subject }
func (p plainIdentity) RoleSet() []string { return nil }
func (p plainIdentity) IsLocked() bool { return false }

func TestLoginGuard_CheckLocked(t *testing.T) {
	guard := auth.NewLoginGuard(&MockTracker{})

	assert.NoError(t, guard.CheckLocked(&auth.User{Email: "a@forum.test"}))
	assert.NoError(t, guard.CheckLocked(nil))

	err := guard.CheckLocked(&auth.User{Email: "a@forum.test", Locked: true})
	assert.True(t, auth.IsAccountLocked(err))
}

func TestLoginGuard_RecordFailure(t *testing.T) {
	ctx := context.Background()
	user := &auth.User{Email: "a@forum.test"}

	t.Run("below threshold", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("IncrementLoginAttempts", mock.Anything, "a@forum.test", 3).
			Return(auth.LoginAttemptState{Attempts: 1}, nil)
		sink := &capturingSink{}

		guard := auth.NewLoginGuard(tracker).WithActivitySink(sink).WithLogger(auth.NopLogger{})

		assert.NoError(t, guard.RecordFailure(ctx, user))
		assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginFailure}, sink.Types())
		tracker.AssertExpectations(t)
	})

	t.Run("tripping the lock", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("IncrementLoginAttempts", mock.Anything, "a@forum.test", 5).
			Return(auth.LoginAttemptState{Attempts: 5, Locked: true, Tripped: true}, nil)
		sink := &capturingSink{}

		guard := auth.NewLoginGuard(tracker).
			WithThreshold(5).
			WithActivitySink(sink).
			WithLogger(auth.NopLogger{})
		assert.Equal(t, 5, guard.Threshold())

		err := guard.RecordFailure(ctx, user)
		require.Error(t, err)
		assert.True(t, auth.IsAccountLocked(err))
		assert.Equal(t, []auth.ActivityEventType{
			auth.ActivityEventLoginFailure,
			auth.ActivityEventAccountLocked,
		}, sink.Types())
	})

	t.Run("already locked by a concurrent attempt", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("IncrementLoginAttempts", mock.Anything, mock.Anything, mock.Anything).
			Return(auth.LoginAttemptState{Attempts: 3, Locked: true}, auth.ErrAccountLocked)

		guard := auth.NewLoginGuard(tracker).WithLogger(auth.NopLogger{})

		err := guard.RecordFailure(ctx, user)
		assert.True(t, auth.IsAccountLocked(err))
	})

	t.Run("tracker failure is transient", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("IncrementLoginAttempts", mock.Anything, mock.Anything, mock.Anything).
			Return(auth.LoginAttemptState{}, stderrors.New("deadlock detected"))

		guard := auth.NewLoginGuard(tracker).WithLogger(auth.NopLogger{})

		err := guard.RecordFailure(ctx, user)
		require.Error(t, err)
		assert.True(t, auth.IsTransient(err))
		assert.False(t, auth.IsAccountLocked(err))
	})

	t.Run("cancelled context never reaches the tracker", func(t *testing.T) {
		tracker := &MockTracker{}
		guard := auth.NewLoginGuard(tracker).WithLogger(auth.NopLogger{})

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		assert.True(t, auth.IsTransient(guard.RecordFailure(cctx, user)))
		tracker.AssertNotCalled(t, "IncrementLoginAttempts", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLoginGuard_RecordSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("clean counter is a no-op", func(t *testing.T) {
		tracker := &MockTracker{}
		guard := auth.NewLoginGuard(tracker)

		assert.NoError(t, guard.RecordSuccess(ctx, &auth.User{Email: "a@forum.test"}))
		assert.NoError(t, guard.RecordSuccess(ctx, nil))
		tracker.AssertNotCalled(t, "ResetLoginAttempts", mock.Anything, mock.Anything)
	})

	t.Run("resets a dirty counter", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("ResetLoginAttempts", mock.Anything, "a@forum.test").Return(nil)
		guard := auth.NewLoginGuard(tracker)

		assert.NoError(t, guard.RecordSuccess(ctx, &auth.User{Email: "a@forum.test", LoginAttempts: 2}))
		tracker.AssertExpectations(t)
	})

	t.Run("identity without a counter is always reset", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("ResetLoginAttempts", mock.Anything, "ext@forum.test").Return(nil)
		guard := auth.NewLoginGuard(tracker)

		assert.NoError(t, guard.RecordSuccess(ctx, plainIdentity{subject: "ext@forum.test"}))
		tracker.AssertExpectations(t)
	})

	t.Run("reset failure is transient", func(t *testing.T) {
		tracker := &MockTracker{}
		tracker.On("ResetLoginAttempts", mock.Anything, mock.Anything).Return(stderrors.New("timeout"))
		guard := auth.NewLoginGuard(tracker)

		err := guard.RecordSuccess(ctx, &auth.User{Email: "a@forum.test", LoginAttempts: 1})
		assert.True(t, auth.IsTransient(err))
	})
}
