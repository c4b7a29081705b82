package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"svcboot/internal/http/middleware"
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

// Error is an HTTP error carrying a machine-readable code. Handlers return it
// and the terminal ErrorHandler renders it.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError creates an Error.
func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// statusCode turns a status into an error code: 413 -> REQUEST_ENTITY_TOO_LARGE.
func statusCode(status int) string {
	msg := utils.StatusMessage(status)
	if msg == "" {
		return "HTTP_ERROR"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(msg))
}

// ErrorHandler returns the terminal Fiber error handler. Every error returned
// by a route or middleware, and every recovered panic, ends up here exactly
// once. Server errors are logged; their details never reach the client.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			ae *Error
			fe *fiber.Error
		)

		status := fiber.StatusInternalServerError
		code := "INTERNAL_ERROR"
		message := "internal server error"

		switch {
		case errors.As(err, &ae):
			status, code, message = ae.Status, ae.Code, ae.Message
		case errors.As(err, &fe):
			status = fe.Code
			if status < fiber.StatusInternalServerError {
				code = statusCode(status)
				message = fe.Message
			}
		}

		if status >= fiber.StatusInternalServerError {
			fields := []zap.Field{
				zap.String("request_id", middleware.RequestIDFrom(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			}
			if sc := trace.SpanContextFromContext(c.UserContext()); sc.HasTraceID() {
				fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
			}
			log.Error("request failed", fields...)
			if ae == nil {
				code, message = "INTERNAL_ERROR", "internal server error"
				if status == fiber.StatusServiceUnavailable {
					code, message = "SERVICE_UNAVAILABLE", "service unavailable"
				}
			}
		}

		return writeError(c, status, code, message)
	}
}
