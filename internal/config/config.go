package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/joho/godotenv"
)

// Config is loaded from the environment, optionally seeded by a .env file.
// It implements auth.Config.
type Config struct {
	SigningKey          string
	Issuer              string
	Audience            []string
	ContextKey          string
	AuthScheme          string
	SessionTTL          time.Duration
	PasswordResetTTL    time.Duration
	LockThreshold       int
	DefaultRole         string
	ResetLinkBase       string
	ExternalRedirectURL string
	ExemptPrefixes      []string

	Address          string
	DatabaseURL      string
	RevocationStore  string
	PurgeInterval    time.Duration
	LoginRateLimit   int
	LogLevel         string
	LogFormat        string
	LogFile          string
	Environment      string
	SentryDSN        string
	MetricsService   string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	ShutdownDeadline time.Duration
}

var _ auth.Config = (*Config)(nil)

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Issuer:           "forum-auth",
		ContextKey:       "principal",
		AuthScheme:       "Bearer",
		SessionTTL:       auth.DefaultSessionTTL,
		PasswordResetTTL: auth.DefaultPasswordResetTTL,
		LockThreshold:    auth.DefaultLockThreshold,
		DefaultRole:      auth.RoleUser,
		ResetLinkBase:    "http://localhost:5500/index.html",
		ExemptPrefixes:   []string{"/login/oauth2/code"},
		Address:          ":8080",
		DatabaseURL:      "file::memory:?cache=shared",
		RevocationStore:  "memory",
		PurgeInterval:    10 * time.Minute,
		LoginRateLimit:   20,
		LogLevel:         "info",
		LogFormat:        "console",
		Environment:      "development",
		MetricsService:   "forumauth",
		SMTPPort:         587,
		ShutdownDeadline: 10 * time.Second,
	}
}

// Load reads the given .env files (missing files are ignored) and then
// the process environment.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load env file").
					WithMetadata(map[string]any{"file": f})
			}
		}
	}

	if len(files) == 0 {
		_ = godotenv.Load()
	}

	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration out of a lookup function
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()
	r := reader{lookup: lookup}

	cfg.SigningKey = r.str("AUTH_SIGNING_KEY", cfg.SigningKey)
	cfg.Issuer = r.str("AUTH_ISSUER", cfg.Issuer)
	cfg.Audience = r.list("AUTH_AUDIENCE", cfg.Audience)
	cfg.ContextKey = r.str("AUTH_CONTEXT_KEY", cfg.ContextKey)
	cfg.AuthScheme = r.str("AUTH_SCHEME", cfg.AuthScheme)
	cfg.SessionTTL = r.duration("AUTH_SESSION_TTL", cfg.SessionTTL)
	cfg.PasswordResetTTL = r.duration("AUTH_PASSWORD_RESET_TTL", cfg.PasswordResetTTL)
	cfg.LockThreshold = r.integer("AUTH_LOCK_THRESHOLD", cfg.LockThreshold)
	cfg.DefaultRole = r.str("AUTH_DEFAULT_ROLE", cfg.DefaultRole)
	cfg.ResetLinkBase = r.str("AUTH_RESET_LINK_BASE", cfg.ResetLinkBase)
	cfg.ExternalRedirectURL = r.str("AUTH_EXTERNAL_REDIRECT_URL", cfg.ExternalRedirectURL)
	cfg.ExemptPrefixes = r.list("AUTH_EXEMPT_PREFIXES", cfg.ExemptPrefixes)

	cfg.Address = r.str("HTTP_ADDRESS", cfg.Address)
	cfg.DatabaseURL = r.str("DATABASE_URL", cfg.DatabaseURL)
	cfg.RevocationStore = r.str("REVOCATION_STORE", cfg.RevocationStore)
	cfg.PurgeInterval = r.duration("REVOCATION_PURGE_INTERVAL", cfg.PurgeInterval)
	cfg.LoginRateLimit = r.integer("LOGIN_RATE_LIMIT", cfg.LoginRateLimit)
	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = r.str("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = r.str("LOG_FILE", cfg.LogFile)
	cfg.Environment = r.str("APP_ENV", cfg.Environment)
	cfg.SentryDSN = r.str("SENTRY_DSN", cfg.SentryDSN)
	cfg.MetricsService = r.str("METRICS_SERVICE", cfg.MetricsService)
	cfg.SMTPHost = r.str("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = r.integer("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = r.str("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = r.str("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = r.str("SMTP_FROM", cfg.SMTPFrom)
	cfg.ShutdownDeadline = r.duration("SHUTDOWN_DEADLINE", cfg.ShutdownDeadline)

	if r.err != nil {
		return nil, r.err
	}

	return cfg, cfg.Validate()
}

// Validate checks the values the service can not run without
func (c *Config) Validate() error {
	if len(c.SigningKey) < 32 {
		return errors.New("AUTH_SIGNING_KEY must be at least 32 bytes", errors.CategoryValidation).
			WithTextCode("INVALID_CONFIG")
	}
	if c.LockThreshold <= 0 {
		return errors.New("AUTH_LOCK_THRESHOLD must be positive", errors.CategoryValidation).
			WithTextCode("INVALID_CONFIG")
	}
	switch c.RevocationStore {
	case "memory", "sql":
	default:
		return errors.New("REVOCATION_STORE must be memory or sql", errors.CategoryValidation).
			WithTextCode("INVALID_CONFIG").
			WithMetadata(map[string]any{"value": c.RevocationStore})
	}
	return nil
}

func (c *Config) GetSigningKey() string { return c.SigningKey }
func (c *Config) GetIssuer() string { return c.Issuer }
func (c *Config) GetAudience() []string { return c.Audience }
func (c *Config) GetContextKey() string { return c.ContextKey }
func (c *Config) GetAuthScheme() string { return c.AuthScheme }
func (c *Config) GetSessionTTL() time.Duration { return c.SessionTTL }
func (c *Config) GetPasswordResetTTL() time.Duration { return c.PasswordResetTTL }
func (c *Config) GetLockThreshold() int { return c.LockThreshold }
func (c *Config) GetDefaultRole() string { return c.DefaultRole }
func (c *Config) GetResetLinkBase() string { return c.ResetLinkBase }
func (c *Config) GetExternalRedirectURL() string { return c.ExternalRedirectURL }
func (c *Config) GetExemptPrefixes() []string { return c.ExemptPrefixes }

type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string, def []string) []string {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	if r.err != nil {
		return
	}
	r.err = errors.Wrap(err, errors.CategoryValidation, "invalid configuration value").
		WithTextCode("INVALID_CONFIG").
		WithMetadata(map[string]any{"key": key, "value": value})
}
