package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MintClaims are the extra claims a caller can embed in a token
type MintClaims struct {
	Roles  []string
	UserID string
}

// TokenCodec signs and verifies HS256 tokens. It does no time based
// validation: expiry and revocation are checked by TokenService.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
}

// CodecOption configures a TokenCodec
type CodecOption func(*TokenCodec)

// WithCodecIssuer sets the iss claim
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// WithCodecAudience sets the aud claim
func WithCodecAudience(audience ...string) CodecOption {
	return func(c *TokenCodec) {
		if len(audience) > 0 {
			c.audience = jwt.ClaimStrings(audience)
		}
	}
}

// WithCodecClock overrides time.Now, mostly for tests
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec creates a codec bound to a single shared secret
func NewTokenCodec(signingKey []byte, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		signingKey: signingKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint signs a token for subject. The expiry is absolute: now + ttl.
func (c *TokenCodec) Mint(subject string, purpose TokenPurpose, claims MintClaims, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	if !purpose.Valid() {
		return "", errors.New("unknown token purpose", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"purpose": string(purpose)})
	}

	now := c.now()
	jwtClaims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenPurpose: purpose,
	}

	if purpose == PurposeSession {
		jwtClaims.Authorities = EncodeAuthorities(claims.Roles)
		jwtClaims.UID = claims.UserID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Decode verifies the signature and structure of raw and returns its claims.
// An expired token decodes fine.
func (c *TokenCodec) Decode(raw string) (*JWTClaims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(raw, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, ErrTokenInvalidSignature
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject() == "" || !claims.TokenPurpose.Valid() || claims.ExpiresAt == nil {
		return nil, withMeta(ErrTokenMalformed, map[string]any{
			"reason": "missing required claims",
		})
	}

	return claims, nil
}
