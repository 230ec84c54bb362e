package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"refdata/internal/http/middleware"
	"refdata/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string      `json:"request_id"`
	Errors    []errorItem `json:"errors"`
}

type errorItem struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_GUID", "NOT_FOUND", "NOT_SUPPORTED")
// - message: human-readable safe message (no internal details)
// - description: optional detail that is safe to show the caller
func writeError(c *fiber.Ctx, status int, code, message string, description ...string) error {
	item := errorItem{Code: code, Message: message}
	if len(description) > 0 {
		item.Description = description[0]
	}
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.GetRequestID(c),
		Errors:    []errorItem{item},
	})
}

// mappedError is the response a service error translates to.
type mappedError struct {
	status      int
	code        string
	message     string
	description string
}

// mapServiceError translates service errors to HTTP responses. First match wins;
// anything unrecognized is reported as a bad request.
func mapServiceError(err error) mappedError {
	var (
		permErr  *service.PermissionError
		argErr   *service.ArgumentError
		repoErr  *service.RepositoryError
		integErr *service.IntegrationError
	)

	switch {
	case errors.Is(err, service.ErrResourceNotFound):
		return mappedError{fiber.StatusNotFound, "RESOURCE_NOT_FOUND", "The requested resource does not exist", ""}
	case errors.Is(err, service.ErrNotFound):
		return mappedError{fiber.StatusNotFound, "NOT_FOUND", "No item exists with the requested guid", ""}
	case errors.Is(err, service.ErrUnauthenticated):
		return mappedError{fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication is required", ""}
	case errors.As(err, &permErr):
		return mappedError{fiber.StatusForbidden, "FORBIDDEN", "Permission denied", "missing permission " + permErr.Permission}
	case errors.Is(err, service.ErrGUIDRequired):
		return mappedError{fiber.StatusBadRequest, "GUID_REQUIRED", "A guid is required", ""}
	case errors.As(err, &argErr):
		return mappedError{fiber.StatusBadRequest, "INVALID_ARGUMENT", "Invalid argument", argErr.Error()}
	case errors.As(err, &repoErr):
		return mappedError{fiber.StatusBadRequest, "REPOSITORY_ERROR", "The data store rejected the request", ""}
	case errors.As(err, &integErr):
		return mappedError{fiber.StatusBadRequest, "INTEGRATION_ERROR", "A collaborating service failed", ""}
	default:
		return mappedError{fiber.StatusBadRequest, "BAD_REQUEST", "The request could not be processed", ""}
	}
}

// writeServiceError logs err and answers with its mapped response.
func writeServiceError(c *fiber.Ctx, log *zap.Logger, resource string, err error) error {
	m := mapServiceError(err)

	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("resource", resource),
		zap.Int("status", m.status),
		zap.Error(err),
	}
	switch m.code {
	case "REPOSITORY_ERROR", "INTEGRATION_ERROR", "BAD_REQUEST":
		log.Error("request failed", fields...)
	default:
		log.Warn("request rejected", fields...)
	}

	return writeError(c, m.status, m.code, m.message, m.description)
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		msg := ""
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
			msg = e.Message
		} else {
			log.Error("unhandled error",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", "authentication required", msg)
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusNotAcceptable:
			return writeError(c, status, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type", msg)
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
