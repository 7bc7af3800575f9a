package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	Subject         string `json:"-"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (m ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Subject, validation.Required),
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(
			&m.NewPassword,
			validation.Required,
			validation.Length(8, 72),
			validation.NotIn(m.CurrentPassword).Error("must differ from the current password"),
		),
	)
}

type ChangePasswordHandler struct {
	tokens *TokenService
}

func NewChangePasswordHandler(tokens *TokenService) *ChangePasswordHandler {
	return &ChangePasswordHandler{tokens: tokens}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, msg ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		).WithTextCode(TextCodeDependencyUnavailable)
	default:
		ctx, cancel := context.WithTimeout(ctx, time.Second*10)
		defer cancel()

		if err := msg.Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload").
				WithCode(goerrors.CodeBadRequest)
		}

		return h.tokens.ChangePassword(ctx, msg.Subject, msg.CurrentPassword, msg.NewPassword)
	}
}
