package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ExternalIdentityVerifier completes an identity provider callback and
// returns the email the provider vouched for.
type ExternalIdentityVerifier interface {
	VerifyCallback(ctx context.Context, provider string, params map[string]string) (string, error)
}

// ExternalIdentityVerifierFunc adapts a function to ExternalIdentityVerifier
type ExternalIdentityVerifierFunc func(ctx context.Context, provider string, params map[string]string) (string, error)

func (f ExternalIdentityVerifierFunc) VerifyCallback(ctx context.Context, provider string, params map[string]string) (string, error) {
	return f(ctx, provider, params)
}

type AuthControllerRoutes struct {
	Base           string
	Register       string
	Login          string
	Logout         string
	ResetRequest   string
	Reset          string
	ChangePassword string
	Validate       string
	// ExternalCallback lives outside Base so the gateway can exempt it
	ExternalCallback string
}

// DefaultAuthControllerRoutes mirrors the forum public API
func DefaultAuthControllerRoutes() *AuthControllerRoutes {
	return &AuthControllerRoutes{
		Base:             "/api/v1/auth",
		Register:         "/register",
		Login:            "/login",
		Logout:           "/logout",
		ResetRequest:     "/password-reset-request",
		Reset:            "/password-reset",
		ChangePassword:   "/change-password",
		Validate:         "/validate",
		ExternalCallback: "/login/oauth2/code/:provider",
	}
}

type AuthController struct {
	Routes         *AuthControllerRoutes
	tokens         *TokenService
	register       *RegisterUserHandler
	changePassword *ChangePasswordHandler
	resetInit      *InitializePasswordResetHandler
	resetFinalize  *FinalizePasswordResetHandler
	verifier       ExternalIdentityVerifier
	redirectURL    string
	authScheme     string
	loginLimiter   fiber.Handler
	logger         Logger
}

type AuthControllerOption func(*AuthController)

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) {
		if logger != nil {
			ac.logger = logger
		}
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) {
		if routes != nil {
			ac.Routes = routes
		}
	}
}

// WithEmailSender enables the reset request route
func WithEmailSender(mailer EmailSender, linkBase string) AuthControllerOption {
	return func(ac *AuthController) {
		if mailer != nil {
			ac.resetInit = NewInitializePasswordResetHandler(ac.tokens, mailer, linkBase)
		}
	}
}

// WithExternalIdentity enables the identity provider callback route
func WithExternalIdentity(verifier ExternalIdentityVerifier, redirectURL string) AuthControllerOption {
	return func(ac *AuthController) {
		ac.verifier = verifier
		ac.redirectURL = redirectURL
	}
}

func WithAuthScheme(scheme string) AuthControllerOption {
	return func(ac *AuthController) {
		if scheme != "" {
			ac.authScheme = scheme
		}
	}
}

// WithLoginRateLimit throttles login attempts per client IP, max <= 0 disables it
func WithLoginRateLimit(max int, window time.Duration) AuthControllerOption {
	return func(ac *AuthController) {
		if max <= 0 {
			ac.loginLimiter = nil
			return
		}
		ac.loginLimiter = limiter.New(limiter.Config{
			Max:        max,
			Expiration: window,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"message": "Too many login attempts, try again later.",
				})
			},
		})
	}
}

func NewAuthController(tokens *TokenService, opts ...AuthControllerOption) *AuthController {
	ac := &AuthController{
		Routes:         DefaultAuthControllerRoutes(),
		tokens:         tokens,
		register:       NewRegisterUserHandler(tokens),
		changePassword: NewChangePasswordHandler(tokens),
		resetFinalize:  NewFinalizePasswordResetHandler(tokens),
		authScheme:     "Bearer",
		logger:         defLogger{},
	}

	WithLoginRateLimit(20, time.Minute)(ac)

	for _, opt := range opts {
		if opt != nil {
			opt(ac)
		}
	}

	ac.resetFinalize.WithLogger(ac.logger)
	if ac.resetInit != nil {
		ac.resetInit.WithLogger(ac.logger)
	}

	return ac
}

// MountLoginLimiter throttles the login route. It must run on the fiber
// app before RegisterAuthRoutes so the limiter sits ahead of the handler.
func (ac *AuthController) MountLoginLimiter(app fiber.Router) {
	if ac.loginLimiter == nil {
		return
	}
	app.Use(ac.Routes.Base+ac.Routes.Login, ac.loginLimiter)
}

// RegisterAuthRoutes mounts the controller on app
func RegisterAuthRoutes[T any](app router.Router[T], ac *AuthController) {
	r := ac.Routes
	group := app.Group(r.Base)

	group.Post(r.Register, ac.RegisterPost).SetName("auth.register")
	group.Post(r.Login, ac.LoginPost).SetName("auth.login")
	group.Post(r.Logout, ac.LogoutPost).SetName("auth.logout")
	group.Post(r.ResetRequest, ac.PasswordResetRequestPost).SetName("auth.password_reset_request")
	group.Post(r.Reset, ac.PasswordResetPost).SetName("auth.password_reset")
	group.Post(r.ChangePassword, ac.ChangePasswordPost).SetName("auth.change_password")
	group.Get(r.Validate, ac.ValidateGet).SetName("auth.validate")

	app.Get(r.ExternalCallback, ac.ExternalCallbackGet).SetName("auth.external_callback")
}

type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type AuthResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
	JWT     string `json:"jwt,omitempty"`
	Status  bool   `json:"status"`
}

type PasswordPayload struct {
	Password string `json:"password" form:"password"`
}

type ChangePasswordPayload struct {
	CurrentPassword string `json:"currentPassword" form:"currentPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
}

func (ac *AuthController) RegisterPost(c router.Context) error {
	payload := LoginPayload{}
	if err := c.Bind(&payload); err != nil {
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid request body.", err)
	}

	var created *User
	err := ac.register.Execute(c.Context(), RegisterUserMessage{
		Email:      payload.Email,
		Password:   payload.Password,
		OnResponse: func(user *User) { created = user },
	})

	if err != nil {
		switch {
		case hasTextCode(err, TextCodeSubjectAlreadyExists):
			return ac.sendError(c, fiber.StatusConflict, "Email is already registered.", err)
		case IsTransient(err):
			return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
		default:
			return ac.sendError(c, fiber.StatusBadRequest, validationMessage(err), err)
		}
	}

	return c.JSON(fiber.StatusCreated, fiber.Map{
		"id":    created.ID.String(),
		"email": created.Email,
		"roles": created.RoleSet(),
	})
}

func (ac *AuthController) LoginPost(c router.Context) error {
	payload := LoginPayload{}
	if err := c.Bind(&payload); err != nil {
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid request body.", err)
	}

	token, err := ac.tokens.Authenticate(c.Context(), payload.Email, payload.Password)
	if err != nil {
		public := PublicAuthError(err)
		switch {
		case IsAccountLocked(public):
			return ac.sendError(c, fiber.StatusForbidden, "Account locked due to multiple failed login attempts.", err)
		case IsTransient(public):
			return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
		default:
			return ac.sendError(c, fiber.StatusUnauthorized, "Invalid credentials.", err)
		}
	}

	return c.JSON(fiber.StatusOK, AuthResponse{
		Email:   NormalizeSubject(payload.Email),
		Message: "User logged in successfully.",
		JWT:     token,
		Status:  true,
	})
}

func (ac *AuthController) LogoutPost(c router.Context) error {
	raw, ok := bearerToken(c.Header(fiber.HeaderAuthorization), ac.authScheme)
	if !ok {
		return ac.sendError(c, fiber.StatusUnauthorized, "You are not authenticated.", nil)
	}

	if err := ac.tokens.Logout(c.Context(), raw); err != nil {
		if IsTransient(err) {
			return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
		}
		return ac.sendError(c, fiber.StatusUnauthorized, "You are not authenticated.", err)
	}

	return c.JSON(fiber.StatusOK, fiber.Map{"message": "Logged out successfully."})
}

// PasswordResetRequestPost answers the same way whether or not the email
// has an account.
func (ac *AuthController) PasswordResetRequestPost(c router.Context) error {
	if ac.resetInit == nil {
		return ac.sendError(c, fiber.StatusNotImplemented, "Password reset is not available.", nil)
	}

	payload := InitializePasswordResetMessage{}
	if err := c.Bind(&payload); err != nil {
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid request body.", err)
	}

	err := ac.resetInit.Execute(c.Context(), payload)
	switch {
	case err == nil, IsIdentityNotFound(err):
		if err != nil {
			ac.logger.Info("password reset requested for unknown email")
		}
		return c.JSON(fiber.StatusOK, fiber.Map{
			"message": "If the email is registered, a password reset link has been sent.",
		})
	case IsTransient(err):
		return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
	default:
		return ac.sendError(c, fiber.StatusBadRequest, validationMessage(err), err)
	}
}

func (ac *AuthController) PasswordResetPost(c router.Context) error {
	payload := PasswordPayload{}
	if err := c.Bind(&payload); err != nil {
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid request body.", err)
	}

	err := ac.resetFinalize.Execute(c.Context(), FinalizePasswordResetMessage{
		Token:    c.Query("token", ""),
		Password: payload.Password,
	})

	switch {
	case err == nil:
		return c.JSON(fiber.StatusOK, fiber.Map{"message": "Password reset successfully."})
	case IsTransient(err):
		return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
	case IsTokenError(err), IsIdentityNotFound(err):
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid or expired token.", err)
	default:
		return ac.sendError(c, fiber.StatusBadRequest, validationMessage(err), err)
	}
}

func (ac *AuthController) ChangePasswordPost(c router.Context) error {
	principal, ok := PrincipalFromContext(c.Context())
	if !ok {
		return ac.sendError(c, fiber.StatusUnauthorized, "You are not authenticated.", nil)
	}

	payload := ChangePasswordPayload{}
	if err := c.Bind(&payload); err != nil {
		return ac.sendError(c, fiber.StatusBadRequest, "Invalid request body.", err)
	}

	err := ac.changePassword.Execute(c.Context(), ChangePasswordMessage{
		Subject:         principal.Subject,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	})

	switch {
	case err == nil:
		return c.JSON(fiber.StatusOK, fiber.Map{"message": "Password changed successfully."})
	case IsIdentityNotFound(err):
		return ac.sendError(c, fiber.StatusNotFound, "User not found.", err)
	case IsInvalidCredentials(err):
		return ac.sendError(c, fiber.StatusUnauthorized, "Incorrect current password.", err)
	case IsTransient(err):
		return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
	default:
		return ac.sendError(c, fiber.StatusBadRequest, validationMessage(err), err)
	}
}

// ValidateGet answers 200 for a live session token and 401 otherwise
func (ac *AuthController) ValidateGet(c router.Context) error {
	if _, err := ac.tokens.ValidateSession(c.Context(), c.Query("token", "")); err != nil {
		if IsTransient(err) {
			return c.NoContent(fiber.StatusServiceUnavailable)
		}
		return c.NoContent(fiber.StatusUnauthorized)
	}
	return c.NoContent(fiber.StatusOK)
}

func (ac *AuthController) ExternalCallbackGet(c router.Context) error {
	if ac.verifier == nil {
		return ac.sendError(c, fiber.StatusNotImplemented, "External login is not available.", nil)
	}

	email, err := ac.verifier.VerifyCallback(c.Context(), c.Param("provider"), c.Queries())
	if err != nil {
		return ac.sendError(c, fiber.StatusUnauthorized, "External login failed.", err)
	}

	token, err := ac.tokens.BootstrapFromExternalIdentity(c.Context(), email)
	if err != nil {
		if IsTransient(err) {
			return ac.sendError(c, fiber.StatusServiceUnavailable, "Service unavailable, try again later.", err)
		}
		return ac.sendError(c, fiber.StatusUnauthorized, "External login failed.", err)
	}

	if ac.redirectURL == "" {
		return c.JSON(fiber.StatusOK, AuthResponse{
			Email:   NormalizeSubject(email),
			Message: "User logged in successfully.",
			JWT:     token,
			Status:  true,
		})
	}

	return c.Redirect(appendTokenQuery(ac.redirectURL, token), fiber.StatusFound)
}

func (ac *AuthController) sendError(c router.Context, status int, message string, err error) error {
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			ac.logger.Info("auth controller %s %s: %s [%s] %s",
				c.Method(), c.Path(), richErr.Message, richErr.TextCode, print.MaybePrettyJSON(richErr.Metadata))
		} else {
			ac.logger.Info("auth controller %s %s: %v", c.Method(), c.Path(), err)
		}
	}
	return c.JSON(status, fiber.Map{
		"message": message,
		"status":  false,
	})
}

// appendTokenQuery sets the token query parameter on a redirect target
func appendTokenQuery(target, token string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ResetLink(target, token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func bearerToken(header, scheme string) (string, bool) {
	header = strings.TrimSpace(header)
	l := len(scheme)
	if len(header) <= l+1 || !strings.EqualFold(header[:l], scheme) || header[l] != ' ' {
		return "", false
	}
	token := strings.TrimSpace(header[l:])
	return token, token != ""
}

func validationMessage(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Source != nil {
		return richErr.Message + ": " + richErr.Source.Error()
	}
	if err != nil {
		return err.Error()
	}
	return "Invalid request."
}
