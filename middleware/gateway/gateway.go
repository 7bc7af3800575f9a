package gateway

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultExemptPrefix is the external identity callback, it runs before
// the caller has a token
const DefaultExemptPrefix = "/login/oauth2/code"

// DefaultContextKey is the fiber locals key holding the auth.Principal
const DefaultContextKey = "principal"

type Config struct {
	// Validator is required, usually *auth.TokenService
	Validator auth.SessionValidator
	// Filter skips the middleware when it returns true
	Filter func(c *fiber.Ctx) bool
	// ExemptPrefixes are path prefixes that never read credentials
	ExemptPrefixes []string
	// Header is the credential header, Authorization by default
	Header string
	// AuthScheme is the scheme stripped from the header, Bearer by default
	AuthScheme string
	// ContextKey is the locals key for the principal
	ContextKey   string
	ErrorHandler fiber.ErrorHandler
	// ContextEnricher propagates the principal to the request user context
	ContextEnricher func(ctx context.Context, principal auth.Principal, claims *auth.JWTClaims) context.Context
	Logger          auth.Logger
}

// New authenticates requests that carry a bearer token. Requests without
// one pass through and route level checks decide what to do with them.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		if cfg.isExempt(c.Path()) {
			return c.Next()
		}

		raw, ok := tokenFromHeader(c.Get(cfg.Header), cfg.AuthScheme)
		if !ok {
			return c.Next()
		}

		claims, err := cfg.Validator.ValidateSession(c.UserContext(), raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		principal := auth.PrincipalFromClaims(claims)
		c.Locals(cfg.ContextKey, principal)
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), principal, claims))

		return c.Next()
	}
}

// GetDefaultConfig fills in defaults, it panics without a Validator
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Validator == nil {
		panic("AUTH: gateway configuration: Validator is required.")
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger{}
	}

	if cfg.ExemptPrefixes == nil {
		cfg.ExemptPrefixes = []string{DefaultExemptPrefix}
	}

	if cfg.Header == "" {
		cfg.Header = fiber.HeaderAuthorization
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = func(ctx context.Context, principal auth.Principal, claims *auth.JWTClaims) context.Context {
			return auth.WithClaimsContext(auth.WithPrincipal(ctx, principal), claims)
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler(cfg.Logger)
	}

	return cfg
}

// DefaultErrorHandler rejects the request. Every token error is reported
// as unauthorized, dependency failures as unavailable.
func DefaultErrorHandler(logger auth.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			logger.Debug("gateway rejected %s %s: %s [%s] %s",
				c.Method(), c.Path(), richErr.Message, richErr.TextCode, print.MaybePrettyJSON(richErr.Metadata))
		} else {
			logger.Debug("gateway rejected %s %s: %v", c.Method(), c.Path(), err)
		}

		if auth.IsTransient(err) {
			logger.Error("gateway could not validate token: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "service unavailable",
			})
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}
}

// PrincipalFrom returns the principal stored by the gateway
func PrincipalFrom(c *fiber.Ctx, key ...string) (auth.Principal, bool) {
	return principalFromLocals(c.Locals(localsKey(key...)))
}

// RoutePrincipalFrom is PrincipalFrom for go-router handlers
func RoutePrincipalFrom(c router.Context, key ...string) (auth.Principal, bool) {
	return principalFromLocals(c.Locals(localsKey(key...)))
}

func localsKey(key ...string) string {
	if len(key) > 0 && key[0] != "" {
		return key[0]
	}
	return DefaultContextKey
}

func principalFromLocals(v any) (auth.Principal, bool) {
	p, ok := v.(auth.Principal)
	return p, ok && p.Subject != ""
}

// RequireAuthenticated rejects requests the gateway did not authenticate
func RequireAuthenticated(key ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFrom(c, key...); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}
		return c.Next()
	}
}

// RequireRole rejects principals without role
func RequireRole(role string, key ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c, key...)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}
		if !p.HasRole(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
			})
		}
		return c.Next()
	}
}

// RequireAtLeast rejects principals below minRole in the role hierarchy
func RequireAtLeast(minRole auth.UserRole, key ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c, key...)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}
		if !p.IsAtLeast(minRole) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
			})
		}
		return c.Next()
	}
}

// AtLeast is RequireAtLeast as a go-router route middleware
func AtLeast(minRole auth.UserRole, key ...string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			p, ok := RoutePrincipalFrom(c, key...)
			if !ok {
				return c.JSON(fiber.StatusUnauthorized, fiber.Map{
					"error": "unauthorized",
				})
			}
			if !p.IsAtLeast(minRole) {
				return c.JSON(fiber.StatusForbidden, fiber.Map{
					"error": "forbidden",
				})
			}
			return next(c)
		}
	}
}

func (cfg Config) isExempt(path string) bool {
	for _, prefix := range cfg.ExemptPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// tokenFromHeader strips the scheme from header. ok is false when the
// header is absent or uses another scheme.
func tokenFromHeader(header, scheme string) (string, bool) {
	header = strings.TrimSpace(header)
	l := len(scheme)
	if len(header) < l || !strings.EqualFold(header[:l], scheme) {
		return "", false
	}
	if len(header) > l && header[l] != ' ' {
		return "", false
	}
	return strings.TrimSpace(header[l:]), true
}
