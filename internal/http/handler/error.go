package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"crmapi/internal/http/middleware"
)

// errorPayload is the body of every non-GraphQL error response:
//
//	{"request_id": "...", "error": {"code": "NOT_FOUND", "message": "task not found"}}
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusText struct{ code, message string }

var statusTexts = map[int]statusText{
	fiber.StatusBadRequest:            {"BAD_REQUEST", "bad request"},
	fiber.StatusNotFound:              {"NOT_FOUND", "resource not found"},
	fiber.StatusMethodNotAllowed:      {"METHOD_NOT_ALLOWED", "method not allowed"},
	fiber.StatusRequestEntityTooLarge: {"PAYLOAD_TOO_LARGE", "request body too large"},
	fiber.StatusTooManyRequests:       {"TOO_MANY_REQUESTS", "too many requests"},
	fiber.StatusServiceUnavailable:    {"SERVICE_UNAVAILABLE", "service unavailable"},
}

var internalError = statusText{"INTERNAL_ERROR", "internal server error"}

func requestIDFromCtx(c *fiber.Ctx) string {
	if s, ok := c.Locals(middleware.RequestIDLocalKey).(string); ok {
		return s
	}
	return middleware.RequestIDFromContext(c.UserContext())
}

// writeError sends the envelope. message must be safe to show to clients.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

func internal(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusInternalServerError, internalError.code, internalError.message)
}

// ErrorHandler is the app-wide fallback for errors handlers return instead of
// writing a response. Statuses without a dedicated code collapse to
// INTERNAL_ERROR; 5xx responses are logged. The underlying error never
// reaches the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		st, ok := statusTexts[status]
		if !ok {
			st = internalError
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("http_request_failed",
				"request_id", requestIDFromCtx(c),
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"error", err.Error())
		}
		return writeError(c, status, st.code, st.message)
	}
}
