package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/middleware"
	"github.com/example/campuspoints/internal/models"
)

func currentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return user, nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func queryBool(c *fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be true or false")
	}
	return &v, nil
}

func queryInt(c *fiber.Ctx, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be an integer")
	}
	return &v, nil
}

func queryID(c *fiber.Ctx, key string) (uint, error) {
	v, err := queryInt(c, key)
	if err != nil || v == nil {
		return 0, err
	}
	if *v <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, key+" must be a positive integer")
	}
	return uint(*v), nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func listResponse[T any](c *fiber.Ctx, count int64, results []T) error {
	if results == nil {
		results = []T{}
	}
	return c.JSON(fiber.Map{
		"count":   count,
		"results": results,
	})
}
