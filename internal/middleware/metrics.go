package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/metrics"
)

// Metrics records request latency by method, route pattern and status.
// Errors are rendered here through the app's ErrorHandler so the recorded
// status is the one the client receives.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := strconv.Itoa(c.Response().StatusCode())
		metrics.RecordRequest(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
		return nil
	}
}
