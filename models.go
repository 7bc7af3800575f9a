package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the role granted to every new account
	RoleUser UserRole = "USER"
	// RoleModerator can moderate forum content
	RoleModerator UserRole = "MODERATOR"
	// RoleAdmin is an admin role
	RoleAdmin UserRole = "ADMIN"
)

// DefaultLockThreshold is the number of consecutive failures that lock an account
const DefaultLockThreshold = 3

// User is the user model. Email is the subject of every token we mint.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Roles          []string   `bun:"roles" json:"roles,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	LoginAttempts  int        `bun:"login_attempts,notnull,default:0" json:"login_attempts"`
	Locked         bool       `bun:"is_locked,notnull,default:false" json:"is_locked"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	ResetedAt      *time.Time `bun:"reseted_at,nullzero" json:"reseted_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

var _ Identity = (*User)(nil)

// Subject returns the email used as token subject
func (u *User) Subject() string {
	return u.Email
}

// RoleSet returns a copy of the user roles
func (u *User) RoleSet() []string {
	out := make([]string, len(u.Roles))
	copy(out, u.Roles)
	return out
}

func (u *User) IsLocked() bool {
	return u.Locked
}

// FailedLoginAttempts returns the consecutive failures counted so far
func (u *User) FailedLoginAttempts() int {
	return u.LoginAttempts
}

// UserID returns the primary key, empty for users not yet stored
func (u *User) UserID() string {
	if u.ID == uuid.Nil {
		return ""
	}
	return u.ID.String()
}

// HasRole reports whether the user holds role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// LoginAttemptState is the counter snapshot after a failed attempt
type LoginAttemptState struct {
	Attempts int  `bun:"login_attempts"`
	Locked   bool `bun:"is_locked"`
	// Tripped is true only for the attempt that moved the account into the
	// locked state.
	Tripped bool `bun:"-"`
}

// RevokedToken is a revocation entry kept until the token would have expired
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rvk"`
	TokenKey      string     `bun:"token_key,pk" json:"token_key"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
