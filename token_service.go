package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService issues, validates and revokes tokens, and runs the
// credential checks that lead to a session.
type TokenService struct {
	codec       *TokenCodec
	directory   UserDirectory
	revocations RevocationStore
	guard       *LoginGuard
	hasher      PasswordAuthenticator
	sessionTTL  time.Duration
	resetTTL    time.Duration
	defaultRole string
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, directory UserDirectory, revocations RevocationStore) *TokenService {
	codec := NewTokenCodec(
		[]byte(cfg.GetSigningKey()),
		WithCodecIssuer(cfg.GetIssuer()),
		WithCodecAudience(cfg.GetAudience()...),
	)

	s := &TokenService{
		codec:       codec,
		directory:   directory,
		revocations: revocations,
		guard:       NewLoginGuard(directory).WithThreshold(cfg.GetLockThreshold()),
		hasher:      NewBcryptHasher(),
		sessionTTL:  durationOr(cfg.GetSessionTTL(), DefaultSessionTTL),
		resetTTL:    durationOr(cfg.GetPasswordResetTTL(), DefaultPasswordResetTTL),
		defaultRole: cfg.GetDefaultRole(),
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
	}

	if s.defaultRole == "" {
		s.defaultRole = RoleUser
	}

	return s
}

// WithHasher overrides the password hasher
func (s *TokenService) WithHasher(hasher PasswordAuthenticator) *TokenService {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithLogger overrides the logger used by the service and its guard.
func (s *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		s.logger = logger
		s.guard.WithLogger(logger)
	}
	return s
}

// WithActivitySink sets the sink used to emit auth events.
func (s *TokenService) WithActivitySink(sink ActivitySink) *TokenService {
	s.activity = normalizeActivitySink(sink)
	s.guard.WithActivitySink(sink)
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
		s.codec.now = now
		s.guard.withClock(now)
	}
	return s
}

// Codec exposes the underlying codec
func (s *TokenService) Codec() *TokenCodec {
	return s.codec
}

// Guard exposes the login guard
func (s *TokenService) Guard() *LoginGuard {
	return s.guard
}

// SessionTTL is the lifetime of the session tokens we mint
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// IssueSessionToken mints a SESSION token carrying the identity roles and,
// when the identity has one, its user id
func (s *TokenService) IssueSessionToken(ctx context.Context, identity Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	if err := ctxError(ctx, "context cancelled while issuing session token"); err != nil {
		return "", err
	}

	claims := MintClaims{Roles: identity.RoleSet()}
	if u, ok := identity.(userIdentifier); ok {
		claims.UserID = u.UserID()
	}

	return s.codec.Mint(identity.Subject(), PurposeSession, claims, s.sessionTTL)
}

// userIdentifier is implemented by identities with a stored primary key
type userIdentifier interface {
	UserID() string
}

// Authenticate checks subject and credential and returns a session token.
func (s *TokenService) Authenticate(ctx context.Context, subject, rawCredential string) (string, error) {
	user, err := s.findUser(ctx, subject)
	if err != nil {
		return "", err
	}

	if err := s.guard.CheckLocked(user); err != nil {
		s.logger.Info("authentication rejected, account locked: %s", subject)
		return "", err
	}

	if err := s.hasher.ComparePasswordAndHash(rawCredential, user.PasswordHash); err != nil {
		if lockErr := s.guard.RecordFailure(ctx, user); lockErr != nil {
			return "", lockErr
		}
		return "", withMeta(ErrInvalidCredentials, map[string]any{
			"subject": subject,
		})
	}

	if err := s.guard.RecordSuccess(ctx, user); err != nil {
		return "", err
	}

	token, err := s.IssueSessionToken(ctx, user)
	if err != nil {
		return "", err
	}

	s.record(ctx, ActivityEventLoginSuccess, subject, nil)

	return token, nil
}

// Validate verifies a token of any purpose. Revocation is checked
// before the signature so revoked material never reaches the decoder.
func (s *TokenService) Validate(ctx context.Context, token string) (*JWTClaims, error) {
	if err := ctxError(ctx, "context cancelled while validating token"); err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, token)
	if err != nil {
		s.logger.Error("revocation lookup failed: %v", err)
		return nil, dependencyError(err, "failed to check token revocation")
	}

	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if !claims.Expires().After(now) {
		return nil, withMeta(ErrTokenExpired, map[string]any{
			"expired_at": claims.Expires().UTC(),
		})
	}

	if nbf := claims.NotBefore(); !nbf.IsZero() && nbf.After(now) {
		return nil, withMeta(ErrTokenMalformed, map[string]any{
			"reason": "token used before its not-before time",
		})
	}

	return claims, nil
}

// ValidateSession validates token and requires the SESSION purpose
func (s *TokenService) ValidateSession(ctx context.Context, token string) (*JWTClaims, error) {
	claims, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.Purpose() != PurposeSession {
		return nil, withMeta(ErrTokenWrongPurpose, map[string]any{
			"expected": PurposeSession,
			"actual":   claims.Purpose(),
		})
	}

	return claims, nil
}

// Revoke invalidates token for the rest of its lifetime. Tokens that
// already expired need no entry.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return err
	}

	ttl := claims.RemainingLifetime(s.now())
	if ttl <= 0 {
		return nil
	}

	if err := s.revocations.Revoke(ctx, token, ttl); err != nil {
		s.logger.Error("failed to revoke token %s: %v", claims.TokenID(), err)
		return dependencyError(err, "failed to revoke token")
	}

	s.record(ctx, ActivityEventTokenRevoked, claims.Subject(), map[string]any{
		"jti":     claims.TokenID(),
		"purpose": claims.Purpose(),
	})

	return nil
}

// Logout revokes a session token
func (s *TokenService) Logout(ctx context.Context, token string) error {
	claims, err := s.ValidateSession(ctx, token)
	if err != nil {
		return err
	}

	if err := s.Revoke(ctx, token); err != nil {
		return err
	}

	s.record(ctx, ActivityEventLogout, claims.Subject(), nil)
	return nil
}

// IssuePasswordResetToken mints a short lived PASSWORD_RESET token
func (s *TokenService) IssuePasswordResetToken(ctx context.Context, subject string) (string, error) {
	user, err := s.findUser(ctx, subject)
	if err != nil {
		return "", err
	}

	token, err := s.codec.Mint(user.Subject(), PurposePasswordReset, MintClaims{}, s.resetTTL)
	if err != nil {
		return "", err
	}

	s.record(ctx, ActivityEventPasswordResetRequest, user.Subject(), nil)

	return token, nil
}

// ConsumePasswordResetToken sets a new credential and unlocks the account.
// The reset token is claimed in the revocation store before anything is
// written, so of several concurrent calls only one gets past the claim.
// A claimed token stays spent even if storing the credential fails.
func (s *TokenService) ConsumePasswordResetToken(ctx context.Context, token, newCredential string) error {
	claims, err := s.Validate(ctx, token)
	if err != nil {
		return err
	}

	if claims.Purpose() != PurposePasswordReset {
		return withMeta(ErrTokenWrongPurpose, map[string]any{
			"expected": PurposePasswordReset,
			"actual":   claims.Purpose(),
		})
	}

	hash, err := s.hasher.HashPassword(newCredential)
	if err != nil {
		return err
	}

	if err := s.claim(ctx, token, claims); err != nil {
		return err
	}

	if err := s.directory.CompletePasswordReset(ctx, claims.Subject(), hash); err != nil {
		if IsIdentityNotFound(err) {
			return err
		}
		return dependencyError(err, "failed to store new credential")
	}

	s.record(ctx, ActivityEventPasswordResetSuccess, claims.Subject(), nil)

	return nil
}

// claim revokes a single use token and fails unless this call did it
func (s *TokenService) claim(ctx context.Context, token string, claims *JWTClaims) error {
	ttl := claims.RemainingLifetime(s.now())
	if ttl <= 0 {
		return withMeta(ErrTokenExpired, map[string]any{"jti": claims.TokenID()})
	}

	claimed, err := s.revocations.RevokeIfAbsent(ctx, token, ttl)
	if err != nil {
		s.logger.Error("failed to claim token %s: %v", claims.TokenID(), err)
		return dependencyError(err, "failed to claim token")
	}

	if !claimed {
		return ErrTokenRevoked
	}

	s.record(ctx, ActivityEventTokenRevoked, claims.Subject(), map[string]any{
		"jti":     claims.TokenID(),
		"purpose": claims.Purpose(),
	})

	return nil
}

// ChangePassword replaces the credential of an authenticated subject
// after checking the current one. It does not count towards lockout.
func (s *TokenService) ChangePassword(ctx context.Context, subject, current, next string) error {
	user, err := s.findUser(ctx, subject)
	if err != nil {
		return err
	}

	if err := s.hasher.ComparePasswordAndHash(current, user.PasswordHash); err != nil {
		return withMeta(ErrInvalidCredentials, map[string]any{
			"subject": subject,
		})
	}

	hash, err := s.hasher.HashPassword(next)
	if err != nil {
		return err
	}

	if err := s.directory.UpdatePassword(ctx, subject, hash); err != nil {
		return dependencyError(err, "failed to update credential")
	}

	s.record(ctx, ActivityEventPasswordChanged, subject, nil)
	return nil
}

// Register provisions a new identity and returns it
func (s *TokenService) Register(ctx context.Context, email, password string, roles ...string) (*User, error) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.provision(ctx, email, hash, roles)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventUserRegistered, user.Subject(), nil)
	return user, nil
}

// BootstrapFromExternalIdentity turns an email already verified by an
// external identity provider into a session token, provisioning the
// identity on first sight.
func (s *TokenService) BootstrapFromExternalIdentity(ctx context.Context, email string) (string, error) {
	user, err := s.findUser(ctx, email)
	if err != nil && !IsIdentityNotFound(err) {
		return "", err
	}

	provisioned := false
	if user == nil {
		hash, err := s.hasher.HashPassword(RandomPassword())
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate placeholder credential")
		}

		user, err = s.provision(ctx, email, hash, nil)
		if err != nil {
			if !hasTextCode(err, TextCodeSubjectAlreadyExists) {
				return "", err
			}
			// lost a race with a concurrent callback for the same email
			if user, err = s.findUser(ctx, email); err != nil {
				return "", err
			}
		} else {
			provisioned = true
		}
	}

	token, err := s.IssueSessionToken(ctx, user)
	if err != nil {
		return "", err
	}

	s.record(ctx, ActivityEventExternalLogin, user.Subject(), map[string]any{
		"provisioned": provisioned,
	})

	return token, nil
}

func (s *TokenService) provision(ctx context.Context, email, hash string, roles []string) (*User, error) {
	if len(roles) == 0 {
		roles = []string{s.defaultRole}
	}

	for _, role := range roles {
		if _, ok := ParseRole(role); !ok {
			return nil, errors.New("unknown role", errors.CategoryBadInput).
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"role": role})
		}
	}

	now := s.now().UTC()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Roles:        roles,
		PasswordHash: hash,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}

	created, err := s.directory.Create(ctx, user)
	if err != nil {
		if hasTextCode(err, TextCodeSubjectAlreadyExists) {
			return nil, err
		}
		return nil, dependencyError(err, "failed to create user")
	}

	return created, nil
}

func (s *TokenService) findUser(ctx context.Context, subject string) (*User, error) {
	if err := ctxError(ctx, "context cancelled while looking up identity"); err != nil {
		return nil, err
	}

	user, err := s.directory.FindBySubject(ctx, subject)
	if err != nil {
		if IsIdentityNotFound(err) {
			return nil, err
		}
		s.logger.Error("directory lookup failed for %s: %v", subject, err)
		return nil, dependencyError(err, "failed to look up identity")
	}

	return user, nil
}

func (s *TokenService) record(ctx context.Context, eventType ActivityEventType, subject string, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: subject, Type: "user"},
		UserID:     subject,
		Metadata:   meta,
		OccurredAt: s.now().UTC(),
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Debug("failed to record activity %s: %v", eventType, err)
	}
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
