package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/services"
	"github.com/example/campuspoints/internal/utils"
)

// TransactionHandler serves cashier and manager ledger endpoints.
type TransactionHandler struct {
	ledger *services.LedgerService
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(ledger *services.LedgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

type createTransactionRequest struct {
	Utorid       string                 `json:"utorid"`
	Type         models.TransactionType `json:"type"`
	Spent        *decimal.Decimal       `json:"spent"`
	Amount       *int                   `json:"amount"`
	RelatedID    *uint                  `json:"relatedId"`
	PromotionIDs []uint                 `json:"promotionIds"`
	Remark       string                 `json:"remark"`
}

// Create records a purchase or an adjustment depending on the request type.
func (h *TransactionHandler) Create(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createTransactionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	switch req.Type {
	case models.TransactionPurchase:
		return h.purchase(c, actor, req)
	case models.TransactionAdjustment:
		return h.adjust(c, actor, req)
	default:
		return fiber.NewError(fiber.StatusBadRequest, "type must be purchase or adjustment")
	}
}

func (h *TransactionHandler) purchase(c *fiber.Ctx, actor *models.User, req createTransactionRequest) error {
	if req.Spent == nil {
		return fiber.NewError(fiber.StatusBadRequest, "spent is required")
	}

	result, err := h.ledger.Purchase(c.UserContext(), actor, services.PurchaseInput{
		Utorid:       req.Utorid,
		Spent:        *req.Spent,
		PromotionIDs: req.PromotionIDs,
		Remark:       req.Remark,
	})
	if err != nil {
		return err
	}

	tx := &result.Transaction
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":           tx.ID,
		"utorid":       tx.Utorid,
		"type":         tx.Type,
		"spent":        tx.Spent.Decimal,
		"earned":       result.Earned,
		"remark":       tx.Remark,
		"promotionIds": tx.PromotionIDs(),
		"createdBy":    tx.CreatedBy,
	})
}

func (h *TransactionHandler) adjust(c *fiber.Ctx, actor *models.User, req createTransactionRequest) error {
	if req.Amount == nil {
		return fiber.NewError(fiber.StatusBadRequest, "amount is required")
	}
	if req.RelatedID == nil {
		return fiber.NewError(fiber.StatusBadRequest, "relatedId is required")
	}

	tx, err := h.ledger.Adjust(c.UserContext(), actor, services.AdjustmentInput{
		Utorid:       req.Utorid,
		Amount:       *req.Amount,
		RelatedID:    *req.RelatedID,
		PromotionIDs: req.PromotionIDs,
		Remark:       req.Remark,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":           tx.ID,
		"utorid":       tx.Utorid,
		"amount":       tx.Amount,
		"type":         tx.Type,
		"relatedId":    tx.RelatedID,
		"remark":       tx.Remark,
		"promotionIds": tx.PromotionIDs(),
		"createdBy":    tx.CreatedBy,
	})
}

func transactionFilter(c *fiber.Ctx) (services.TransactionFilter, error) {
	f := services.TransactionFilter{
		Name:      c.Query("name"),
		CreatedBy: c.Query("createdBy"),
		Type:      models.TransactionType(c.Query("type")),
		Operator:  c.Query("operator"),
		SortBy:    c.Query("sortBy"),
		Order:     c.Query("order"),
		Page:      utils.ParsePagination(c),
	}
	var err error
	if f.Suspicious, err = queryBool(c, "suspicious"); err != nil {
		return f, err
	}
	if f.PromotionID, err = queryID(c, "promotionId"); err != nil {
		return f, err
	}
	if f.Amount, err = queryInt(c, "amount"); err != nil {
		return f, err
	}
	related, err := queryID(c, "relatedId")
	if err != nil {
		return f, err
	}
	if related != 0 {
		f.RelatedID = &related
	}
	return f, nil
}

// List returns a filtered page of all transactions.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	filter, err := transactionFilter(c)
	if err != nil {
		return err
	}
	rows, count, err := h.ledger.List(c.UserContext(), filter)
	if err != nil {
		return err
	}

	results := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		results = append(results, transactionView(&rows[i]))
	}
	return listResponse(c, count, results)
}

// Get returns a single transaction.
func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "transactionId")
	if err != nil {
		return err
	}
	tx, err := h.ledger.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(transactionView(tx))
}

type suspiciousRequest struct {
	Suspicious *bool `json:"suspicious"`
}

// SetSuspicious flags or clears a transaction.
func (h *TransactionHandler) SetSuspicious(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "transactionId")
	if err != nil {
		return err
	}
	var req suspiciousRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Suspicious == nil {
		return fiber.NewError(fiber.StatusBadRequest, "suspicious is required")
	}

	tx, err := h.ledger.SetSuspicious(c.UserContext(), actor, id, *req.Suspicious)
	if err != nil {
		return err
	}
	return c.JSON(transactionView(tx))
}

type processedRequest struct {
	Processed *bool `json:"processed"`
}

// Process marks a pending redemption as handed out.
func (h *TransactionHandler) Process(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "transactionId")
	if err != nil {
		return err
	}
	var req processedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Processed == nil || !*req.Processed {
		return fiber.NewError(fiber.StatusBadRequest, "processed can only be set to true")
	}

	tx, err := h.ledger.ProcessRedemption(c.UserContext(), actor, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"id":          tx.ID,
		"utorid":      tx.Utorid,
		"type":        tx.Type,
		"processedBy": actor.Utorid,
		"redeemed":    -tx.Amount,
		"remark":      tx.Remark,
		"createdBy":   tx.CreatedBy,
	})
}
