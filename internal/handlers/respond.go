package handlers

import (
	"errors"
	"log"

	"c2cmarket/internal/identity"
	"c2cmarket/internal/repositories"
	"c2cmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps service and gateway errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, identity.ErrWeakPassword):
		return fiber.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidLink),
		errors.Is(err, identity.ErrInvalidResetCode),
		errors.Is(err, identity.ErrFederatedRejected),
		errors.Is(err, services.ErrNotSignedIn):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, repositories.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, identity.ErrEmailInUse), errors.Is(err, repositories.ErrDuplicate):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err as the JSON error body used by every handler.
// Internal errors are logged and their text is not returned.
func writeError(c *fiber.Ctx, err error, message string) error {
	status := statusFor(err)

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(status).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  verr.Fields,
		})
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("%s %s: %s: %v", c.Method(), c.Path(), message, err)
		return c.Status(status).JSON(fiber.Map{
			"message": message,
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}

// parseBody decodes the request body into dst. When ok is false a 400
// response has already been written and err is the result of writing it.
func parseBody(c *fiber.Ctx, dst any) (ok bool, err error) {
	if perr := c.BodyParser(dst); perr != nil {
		log.Printf("Error parsing %s %s request body: %v", c.Method(), c.Path(), perr)
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   perr.Error(),
		})
	}
	return true, nil
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": message,
	})
}
