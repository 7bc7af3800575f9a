package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose tags a token with the operation it was minted for
type TokenPurpose string

const (
	PurposeSession       TokenPurpose = "SESSION"
	PurposePasswordReset TokenPurpose = "PASSWORD_RESET"
)

const (
	// DefaultSessionTTL is the lifetime of a session token
	DefaultSessionTTL = 2 * time.Hour
	// DefaultPasswordResetTTL is the lifetime of a password reset token
	DefaultPasswordResetTTL = 15 * time.Minute
)

// rolePrefix is how authorities are written in the roles claim
const rolePrefix = "ROLE_"

func (p TokenPurpose) String() string {
	return string(p)
}

// Valid reports whether p is one of the known purposes
func (p TokenPurpose) Valid() bool {
	return p == PurposeSession || p == PurposePasswordReset
}

// JWTClaims is the payload of every token we mint
type JWTClaims struct {
	jwt.RegisteredClaims
	TokenPurpose TokenPurpose `json:"pur"`
	Authorities  string       `json:"authorities,omitempty"`
	UID          string       `json:"userId,omitempty"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

func (c *JWTClaims) Purpose() TokenPurpose {
	return c.TokenPurpose
}

// UserID returns the user primary key carried by session tokens
func (c *JWTClaims) UserID() string {
	return c.UID
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Roles decodes the authorities claim, "ROLE_USER,ROLE_ADMIN" -> [USER ADMIN]
func (c *JWTClaims) Roles() []string {
	return DecodeAuthorities(c.Authorities)
}

// HasRole checks if the token carries role
func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

func (c *JWTClaims) NotBefore() time.Time {
	if c.RegisteredClaims.NotBefore == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.NotBefore.Time
}

// RemainingLifetime is the time left until expiry, zero if already expired
func (c *JWTClaims) RemainingLifetime(now time.Time) time.Duration {
	exp := c.Expires()
	if exp.IsZero() || !exp.After(now) {
		return 0
	}
	return exp.Sub(now)
}

// EncodeAuthorities renders roles in the authorities claim format
func EncodeAuthorities(roles []string) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.HasPrefix(r, rolePrefix) {
			r = rolePrefix + r
		}
		out = append(out, r)
	}
	return strings.Join(out, ",")
}

// DecodeAuthorities is the inverse of EncodeAuthorities
func DecodeAuthorities(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(p, rolePrefix))
	}
	return out
}
