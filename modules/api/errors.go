package api

import (
	"errors"
	"log"

	"github.com/example/chat-backend/domain/apperr"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindAuthorization:
		return fiber.StatusForbidden
	case apperr.KindAuthentication:
		return fiber.StatusUnauthorized
	case apperr.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError answers with the kind's status and the user-facing message.
// Server-side failures are logged with their cause.
func writeError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   kind.String(),
		Message: apperr.PublicMessage(err),
	})
}

// customErrorHandler handles errors that escaped the handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{
			Error:   "server_error",
			Message: fe.Message,
		})
	}
	return writeError(c, err)
}
