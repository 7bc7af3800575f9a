package auth

import "context"

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// Principal is the authenticated caller attached to a request
type Principal struct {
	Subject string
	// UserID is the user primary key, empty for tokens minted without one
	UserID  string
	Roles   []string
	TokenID string
}

// HasRole checks the principal roles
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAtLeast reports whether one of the principal roles meets minRole
func (p Principal) IsAtLeast(minRole UserRole) bool {
	return AnyRoleIsAtLeast(p.Roles, minRole)
}

// PrincipalFromClaims builds the principal out of validated session claims
func PrincipalFromClaims(claims *JWTClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{
		Subject: claims.Subject(),
		UserID:  claims.UserID(),
		Roles:   claims.Roles(),
		TokenID: claims.TokenID(),
	}
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	raw, ok := ctx.Value(principalCtxKey).(Principal)
	return raw, ok && raw.Subject != ""
}

// WithClaimsContext sets the validated claims in the given context
func WithClaimsContext(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the claims from the standard context
func GetClaims(ctx context.Context) (*JWTClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(claimsCtxKey).(*JWTClaims)
	return raw, ok && raw != nil
}
