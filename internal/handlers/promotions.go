package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/services"
	"github.com/example/campuspoints/internal/utils"
)

// PromotionHandler serves promotion CRUD.
type PromotionHandler struct {
	promotions *services.PromotionService
}

// NewPromotionHandler constructs a PromotionHandler.
func NewPromotionHandler(promotions *services.PromotionService) *PromotionHandler {
	return &PromotionHandler{promotions: promotions}
}

type createPromotionRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Type        models.PromotionType `json:"type"`
	StartTime   time.Time            `json:"startTime"`
	EndTime     time.Time            `json:"endTime"`
	MinSpending *decimal.Decimal     `json:"minSpending"`
	Rate        *decimal.Decimal     `json:"rate"`
	Points      int                  `json:"points"`
}

// Create adds a promotion and offers it to every user.
func (h *PromotionHandler) Create(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createPromotionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	promo, err := h.promotions.Create(c.UserContext(), actor, services.PromotionInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(promotionView(promo))
}

// List returns a filtered page of promotions visible to the caller.
func (h *PromotionHandler) List(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	started, err := queryBool(c, "started")
	if err != nil {
		return err
	}
	ended, err := queryBool(c, "ended")
	if err != nil {
		return err
	}

	promos, count, err := h.promotions.List(c.UserContext(), actor, services.PromotionFilter{
		Name:    c.Query("name"),
		Type:    models.PromotionType(c.Query("type")),
		Started: started,
		Ended:   ended,
		Page:    utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}
	return listResponse(c, count, promotionViews(promos))
}

// Get returns one promotion.
func (h *PromotionHandler) Get(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "promotionId")
	if err != nil {
		return err
	}
	promo, err := h.promotions.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(promotionView(promo))
}

type updatePromotionRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Type        *models.PromotionType `json:"type"`
	StartTime   *time.Time            `json:"startTime"`
	EndTime     *time.Time            `json:"endTime"`
	MinSpending *decimal.Decimal      `json:"minSpending"`
	Rate        *decimal.Decimal      `json:"rate"`
	Points      *int                  `json:"points"`
}

// Update edits a promotion that has not started and echoes the changes.
func (h *PromotionHandler) Update(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "promotionId")
	if err != nil {
		return err
	}
	var req updatePromotionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	promo, changed, err := h.promotions.Update(c.UserContext(), actor, id, services.PromotionPatch{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	})
	if err != nil {
		return err
	}

	full := promotionView(promo)
	out := fiber.Map{
		"id":   promo.ID,
		"name": promo.Name,
		"type": promo.Type,
	}
	for _, field := range changed {
		if v, ok := full[field]; ok {
			out[field] = v
		}
	}
	return c.JSON(out)
}

// Delete removes a promotion that has not started.
func (h *PromotionHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "promotionId")
	if err != nil {
		return err
	}
	if err := h.promotions.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
