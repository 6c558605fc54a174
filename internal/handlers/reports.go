package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/services"
)

// ReportHandler serves staff reports.
type ReportHandler struct {
	reports *services.ReportService
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Summary returns the current program snapshot.
func (h *ReportHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.reports.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// Health pings the database.
func Health(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
