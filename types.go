package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAuthScheme() string
	GetSessionTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetLockThreshold() int
	GetDefaultRole() string
	GetResetLinkBase() string
	GetExternalRedirectURL() string
	GetExemptPrefixes() []string
}

// Identity holds the attributes of an identity
type Identity interface {
	Subject() string
	RoleSet() []string
	IsLocked() bool
}

// UserDirectory is the persistence contract for identities.
// Lock state transitions must be atomic per subject.
type UserDirectory interface {
	LoginAttemptTracker
	FindBySubject(ctx context.Context, subject string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	UpdatePassword(ctx context.Context, subject, passwordHash string) error
	CompletePasswordReset(ctx context.Context, subject, passwordHash string) error
}

// LoginAttemptTracker persists the failed login counter
type LoginAttemptTracker interface {
	// IncrementLoginAttempts adds one failure and locks the subject when the
	// counter reaches threshold. A locked subject is left untouched.
	IncrementLoginAttempts(ctx context.Context, subject string, threshold int) (LoginAttemptState, error)
	// ResetLoginAttempts clears the counter and the lock after a success.
	ResetLoginAttempts(ctx context.Context, subject string) error
}

// RevocationStore keeps revoked tokens until their natural expiry
type RevocationStore interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// RevokeIfAbsent revokes token and reports whether this call did it.
	// Single use tokens are claimed with it before they are acted upon.
	RevokeIfAbsent(ctx context.Context, token string, ttl time.Duration) (bool, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// EmailSender delivers transactional emails such as reset links
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SessionValidator is what the gateway needs to authenticate a request
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*JWTClaims, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
