package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"ffp-admin/apperrors"
	"ffp-admin/middleware"
)

type errorBody struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Fields  []goerrors.FieldError `json:"fields,omitempty"`
	Cause   string                `json:"cause,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(envelope{Success: true, Data: data})
}

// ErrorHandler renders every returned error as the JSON error envelope. The
// underlying cause is only exposed when development is true.
func ErrorHandler(log *zap.Logger, development bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(envelope{Error: &errorBody{
				Code:    fiberTextCode(fe.Code),
				Message: fe.Message,
			}})
		}

		rich := apperrors.From(err)
		body := &errorBody{
			Code:    rich.TextCode,
			Message: rich.Message,
			Fields:  rich.AllValidationErrors(),
		}
		if rich.Category == goerrors.CategoryInternal {
			if cause := errors.Unwrap(rich); development && cause != nil {
				body.Cause = cause.Error()
			}
			if !development {
				body.Message = "internal server error"
			}
		}

		status := rich.Code
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if status >= 500 {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(status).JSON(envelope{Error: body})
	}
}

func fiberTextCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return apperrors.CodeNotFound
	case fiber.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case fiber.StatusConflict:
		return apperrors.CodeConflict
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
		return apperrors.CodeValidation
	}
	if status >= 500 {
		return apperrors.CodeInternal
	}
	return http.StatusText(status)
}

// badRequest reports a payload that could not be decoded.
func badRequest(message string) error {
	return apperrors.Validation(message)
}

// actingUser returns the session's user id, or Unauthorized before any body
// is read.
func actingUser(c *fiber.Ctx) (string, error) {
	id := middleware.ActingUser(c)
	if id == "" {
		return "", apperrors.Unauthorized("authentication required")
	}
	return id, nil
}
