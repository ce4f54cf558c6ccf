// Package apperrors defines the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"gorm.io/gorm"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// Unauthorized is returned when no acting user can be resolved.
func Unauthorized(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(CodeUnauthorized)
}

// NotFound covers missing, archived and foreign-owned entities alike.
func NotFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(CodeNotFound)
}

// Validation reports a business-rule or schema violation.
func Validation(message string, fields ...goerrors.FieldError) error {
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeValidation)
}

// Field is shorthand for a single field violation.
func Field(field, message string) goerrors.FieldError {
	return goerrors.FieldError{Field: field, Message: message}
}

func Conflict(message string) error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(CodeConflict)
}

// Internal wraps an unexpected failure. The source is kept for logs and
// development responses only.
func Internal(source error, message string) error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(CodeInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal)
}

// From converts any error into a rich envelope. Errors that already carry one
// pass through untouched.
func From(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		goerrors.As(NotFound("resource not found"), &rich)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		goerrors.As(Conflict("resource already exists"), &rich)
	default:
		goerrors.As(Internal(err, "internal server error"), &rich)
	}
	return rich
}

// Is reports whether err carries the given category.
func Is(err error, category goerrors.Category) bool {
	rich := From(err)
	return rich != nil && rich.Category == category
}

func IsNotFound(err error) bool     { return Is(err, goerrors.CategoryNotFound) }
func IsValidation(err error) bool   { return Is(err, goerrors.CategoryValidation) }
func IsConflict(err error) bool     { return Is(err, goerrors.CategoryConflict) }
func IsUnauthorized(err error) bool { return Is(err, goerrors.CategoryAuth) }

// Status returns the HTTP status for err, defaulting to 500.
func Status(err error) int {
	rich := From(err)
	if rich == nil || rich.Code == 0 {
		return http.StatusInternalServerError
	}
	return rich.Code
}
