package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email"`
}

func (m InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

// InitializePasswordResetHandler mints a reset token and emails the link
type InitializePasswordResetHandler struct {
	tokens   *TokenService
	mailer   EmailSender
	linkBase string
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(tokens *TokenService, mailer EmailSender, linkBase string) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		tokens:   tokens,
		mailer:   mailer,
		linkBase: linkBase,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, msg InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		).WithTextCode(TextCodeDependencyUnavailable)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, msg InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request").
			WithCode(goerrors.CodeBadRequest)
	}

	token, err := h.tokens.IssuePasswordResetToken(ctx, msg.Email)
	if err != nil {
		return err
	}

	link := ResetLink(h.linkBase, token)
	body := fmt.Sprintf("To reset your password, click the link below:\n%s\n\nThe link expires in %s.", link, h.tokens.resetTTL)

	if err := h.mailer.Send(ctx, NormalizeSubject(msg.Email), "Password Reset Request", body); err != nil {
		h.logger.Error("failed to send password reset email to %s: %v", msg.Email, err)
		return dependencyError(err, "failed to send password reset email")
	}

	return nil
}

// ResetLink appends token as the token query parameter of base
func ResetLink(base, token string) string {
	if base == "" {
		base = "/password-reset"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
