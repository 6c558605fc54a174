package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:      fiber.StatusBadRequest,
	services.KindAuth:            fiber.StatusUnauthorized,
	services.KindPermission:      fiber.StatusForbidden,
	services.KindNotFound:        fiber.StatusNotFound,
	services.KindConflict:        fiber.StatusConflict,
	services.KindGone:            fiber.StatusGone,
	services.KindPolicy:          fiber.StatusBadRequest,
	services.KindTooManyRequests: fiber.StatusTooManyRequests,
}

// ErrorHandler renders every failure as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var svcErr *services.Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &svcErr):
		if status, ok := kindStatus[svcErr.Kind]; ok {
			code = status
		}
		message = svcErr.Message
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	default:
		log.Printf("[HTTP] %s %s: %v", c.Method(), c.OriginalURL(), err)
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}
