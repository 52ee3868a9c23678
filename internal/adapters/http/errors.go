package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, invalid_coordinate, conflict, not_found, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnauthorized, "unauthorized", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// respondError maps a service error onto the API error envelope.
func respondError(c *fiber.Ctx, err error) error {
	var coordErr *domain.CoordinateError
	switch {
	case errors.As(err, &coordErr):
		return newError(c, fiber.StatusBadRequest, "invalid_coordinate", coordErr.Error())
	case errors.Is(err, domain.ErrConflict):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "session not found")
	case errors.Is(err, domain.ErrPurgeUnavailable):
		return newError(c, fiber.StatusServiceUnavailable, "purge_unavailable", err.Error())
	default:
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		return errInternal(c, "internal error")
	}
}
