package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docintake/internal/http/middleware"
	"docintake/internal/model"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "VALIDATION_ERROR", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// classify maps a component error onto an HTTP status, error code and safe message.
func classify(err error) (int, string, string) {
	var (
		validation  *model.ValidationError
		tooLarge    *model.PayloadTooLargeError
		auth        *model.AuthenticationError
		unavailable *model.UpstreamUnavailableError
		method      *model.UnsupportedMethodError
		downstream  *model.DownstreamError
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, "VALIDATION_ERROR", validation.Message
	case errors.As(err, &tooLarge):
		return fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "file exceeds the maximum upload size"
	case errors.Is(err, model.ErrCustomerNotFound):
		return fiber.StatusNotFound, "NOT_FOUND", "customer not found"
	case errors.As(err, &auth):
		return fiber.StatusServiceUnavailable, "AUTHENTICATION_FAILED", "upstream authentication failed"
	case errors.As(err, &unavailable):
		return fiber.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "upstream service unavailable"
	case errors.As(err, &method):
		return fiber.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"
	case errors.As(err, &downstream):
		return fiber.StatusBadGateway, "DOWNSTREAM_ERROR", downstream.System + " request failed"
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func writeDomainError(c *fiber.Ctx, err error) error {
	status, code, message := classify(err)
	return writeError(c, status, code, message)
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if !errors.As(err, &e) {
			return writeDomainError(c, err)
		}

		switch e.Code {
		case fiber.StatusBadRequest:
			return writeError(c, e.Code, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, e.Code, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, e.Code, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			// Bodies over the server limit never reach the upload handler.
			if c.Path() == uploadPath {
				return writeUploadTooLarge(c)
			}
			return writeError(c, e.Code, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, e.Code, "INTERNAL_ERROR", "internal server error")
		}
	}
}
