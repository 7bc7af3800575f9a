package auth

import (
	"context"
	"time"
)

// LoginGuard enforces the lockout policy. Counting is delegated to the
// tracker, which must apply each failure as a single atomic step.
type LoginGuard struct {
	tracker   LoginAttemptTracker
	threshold int
	activity  ActivitySink
	logger    Logger
	now       func() time.Time
}

// NewLoginGuard creates a guard with the default threshold of 3
func NewLoginGuard(tracker LoginAttemptTracker) *LoginGuard {
	return &LoginGuard{
		tracker:   tracker,
		threshold: DefaultLockThreshold,
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
	}
}

// WithThreshold overrides the number of failures that lock the account
func (g *LoginGuard) WithThreshold(threshold int) *LoginGuard {
	if threshold > 0 {
		g.threshold = threshold
	}
	return g
}

// WithActivitySink sets the sink used to emit lockout events.
func (g *LoginGuard) WithActivitySink(sink ActivitySink) *LoginGuard {
	g.activity = normalizeActivitySink(sink)
	return g
}

// WithLogger overrides the logger used by the guard.
func (g *LoginGuard) WithLogger(logger Logger) *LoginGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

func (g *LoginGuard) withClock(now func() time.Time) *LoginGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// Threshold returns the configured lock threshold
func (g *LoginGuard) Threshold() int {
	return g.threshold
}

// CheckLocked rejects locked identities without touching the counter
func (g *LoginGuard) CheckLocked(identity Identity) error {
	if identity != nil && identity.IsLocked() {
		return withMeta(ErrAccountLocked, map[string]any{
			"subject": identity.Subject(),
		})
	}
	return nil
}

// RecordFailure counts a failed attempt. It returns ErrAccountLocked when
// this failure (or a concurrent one) locked the account, nil otherwise.
func (g *LoginGuard) RecordFailure(ctx context.Context, identity Identity) error {
	if err := ctxError(ctx, "context cancelled while recording failed login"); err != nil {
		return err
	}

	state, err := g.tracker.IncrementLoginAttempts(ctx, identity.Subject(), g.threshold)
	if err != nil {
		if IsAccountLocked(err) || IsIdentityNotFound(err) {
			return err
		}
		return dependencyError(err, "failed to record login attempt")
	}

	g.record(ctx, ActivityEventLoginFailure, identity.Subject(), map[string]any{
		"attempts": state.Attempts,
	})

	if state.Tripped {
		g.logger.Warn("account locked after %d failed attempts: %s", state.Attempts, identity.Subject())
		g.record(ctx, ActivityEventAccountLocked, identity.Subject(), map[string]any{
			"attempts":  state.Attempts,
			"threshold": g.threshold,
		})
	}

	if state.Locked {
		return withMeta(ErrAccountLocked, map[string]any{
			"subject":  identity.Subject(),
			"attempts": state.Attempts,
		})
	}

	return nil
}

// attemptCounter is implemented by identities that carry their failure
// counter, letting RecordSuccess skip the write for a clean one
type attemptCounter interface {
	FailedLoginAttempts() int
}

// RecordSuccess clears the counter after a successful login
func (g *LoginGuard) RecordSuccess(ctx context.Context, identity Identity) error {
	if identity == nil {
		return nil
	}
	if c, ok := identity.(attemptCounter); ok && c.FailedLoginAttempts() == 0 && !identity.IsLocked() {
		return nil
	}
	if err := g.tracker.ResetLoginAttempts(ctx, identity.Subject()); err != nil {
		return dependencyError(err, "failed to reset login attempts")
	}
	return nil
}

func (g *LoginGuard) record(ctx context.Context, eventType ActivityEventType, subject string, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: subject, Type: "user"},
		UserID:     subject,
		Metadata:   meta,
		OccurredAt: g.now().UTC(),
	}
	if err := g.activity.Record(ctx, event); err != nil {
		g.logger.Debug("failed to record activity %s: %v", eventType, err)
	}
}
