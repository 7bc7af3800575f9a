package auth

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeAccountLocked         = "ACCOUNT_LOCKED"
	TextCodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenRevoked          = "TOKEN_REVOKED"
	TextCodeTokenWrongPurpose     = "TOKEN_WRONG_PURPOSE"
	TextCodeDependencyUnavailable = "TRANSIENT_DEPENDENCY_FAILURE"
	TextCodeSubjectAlreadyExists  = "SUBJECT_ALREADY_EXISTS"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials is returned when the credential does not match the stored hash
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountLocked is returned while the identity is locked after repeated failures
var ErrAccountLocked = errors.New("account is locked", errors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(errors.CodeForbidden)

var ErrTokenInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalidSignature).
	WithCode(errors.CodeUnauthorized)

var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

var ErrTokenRevoked = errors.New("token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrTokenWrongPurpose is returned when a token is presented for an operation
// it was not minted for, e.g. a reset token used as a session
var ErrTokenWrongPurpose = errors.New("token purpose does not match", errors.CategoryAuth).
	WithTextCode(TextCodeTokenWrongPurpose).
	WithCode(errors.CodeUnauthorized)

// ErrDependencyUnavailable signals that a store could not answer in time.
// Callers must treat it as a rejection.
var ErrDependencyUnavailable = errors.New("dependency temporarily unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeDependencyUnavailable).
	WithCode(http.StatusServiceUnavailable)

var ErrSubjectAlreadyExists = errors.New("an account with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeSubjectAlreadyExists).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be an empty string", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned by the hasher on a credential mismatch
var ErrMismatchedHashAndPassword = stderrors.New("hashed password does not match the given password")

// dependencyError wraps a store failure so that it is reported as transient
func dependencyError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithTextCode(TextCodeDependencyUnavailable).
		WithCode(http.StatusServiceUnavailable)
}

// ctxError reports a cancelled or expired context as a transient failure
func ctxError(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, msg).
			WithTextCode(TextCodeDependencyUnavailable).
			WithCode(http.StatusServiceUnavailable)
	}
	return nil
}

func withMeta(err *errors.Error, meta map[string]any) error {
	return err.Clone().WithMetadata(meta)
}

func hasTextCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	for _, code := range codes {
		if richErr.TextCode == code {
			return true
		}
	}
	return false
}

// IsIdentityNotFound will check for missing identities
func IsIdentityNotFound(err error) bool {
	return hasTextCode(err, TextCodeIdentityNotFound)
}

func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

func IsAccountLocked(err error) bool {
	return hasTextCode(err, TextCodeAccountLocked)
}

// IsTokenExpired will check for expired tokens
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

func IsTokenRevoked(err error) bool {
	return hasTextCode(err, TextCodeTokenRevoked)
}

func IsTokenWrongPurpose(err error) bool {
	return hasTextCode(err, TextCodeTokenWrongPurpose)
}

// IsTokenMalformed will check for malformed tokens
func IsTokenMalformed(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

func IsTokenInvalidSignature(err error) bool {
	return hasTextCode(err, TextCodeTokenInvalidSignature)
}

// IsTokenError reports any of the token validation failures
func IsTokenError(err error) bool {
	return hasTextCode(err,
		TextCodeTokenInvalidSignature,
		TextCodeTokenMalformed,
		TextCodeTokenExpired,
		TextCodeTokenRevoked,
		TextCodeTokenWrongPurpose,
	)
}

// IsTransient reports dependency failures, including cancelled contexts
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeDependencyUnavailable) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// PublicAuthError maps an authentication failure to what we show callers.
// Unknown subjects and wrong credentials produce the same error so that
// callers can not tell which emails have accounts. Locked accounts and
// transient failures stay visible.
func PublicAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsIdentityNotFound(err), IsInvalidCredentials(err):
		return ErrInvalidCredentials.Clone()
	case IsAccountLocked(err):
		return ErrAccountLocked.Clone()
	case IsTransient(err):
		return ErrDependencyUnavailable.Clone()
	default:
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return richErr
		}
		return errors.Wrap(err, errors.CategoryInternal, "authentication failed").
			WithCode(errors.CodeInternal)
	}
}
