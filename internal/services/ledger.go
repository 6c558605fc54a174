package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/metrics"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/utils"
)

// pointValue is the spend that earns one base point.
var pointValue = decimal.RequireFromString("0.25")

// LedgerService records transactions and applies them to balances.
type LedgerService struct {
	db         *gorm.DB
	promotions *PromotionService
	notifier   Notifier
}

// NewLedgerService constructs a LedgerService. notifier may be nil.
func NewLedgerService(db *gorm.DB, promotions *PromotionService, notifier Notifier) *LedgerService {
	return &LedgerService{db: db, promotions: promotions, notifier: notifier}
}

// BasePoints converts a purchase amount into base points.
func BasePoints(spent decimal.Decimal) int {
	return int(spent.Div(pointValue).Round(0).IntPart())
}

// PurchaseInput describes a purchase recorded by a cashier.
type PurchaseInput struct {
	Utorid       string
	Spent        decimal.Decimal
	PromotionIDs []uint
	Remark       string
}

// PurchaseResult is the stored purchase plus the points actually credited.
type PurchaseResult struct {
	Transaction models.Transaction
	Earned      int
}

// Purchase records a purchase and credits base plus promotion points. A
// purchase recorded by a suspicious cashier is stored flagged and credits
// nothing until cleared.
func (s *LedgerService) Purchase(ctx context.Context, actor *models.User, in PurchaseInput) (*PurchaseResult, error) {
	if !access.Can(actor.Role, access.Create, access.Purchases) {
		return nil, permissionErr("Permission denied")
	}
	in.Utorid = strings.ToLower(strings.TrimSpace(in.Utorid))
	if in.Utorid == "" {
		return nil, validationErr("utorid is required")
	}
	if !in.Spent.IsPositive() {
		return nil, validationErr("spent must be a positive number")
	}

	var result PurchaseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payer, err := lockUserByUtorid(tx, in.Utorid)
		if err != nil {
			return err
		}

		promos, bonus, err := s.promotions.Evaluate(tx, payer, in.Spent, in.PromotionIDs)
		if err != nil {
			return err
		}

		amount := BasePoints(in.Spent) + bonus
		txn := models.Transaction{
			UserID:     payer.ID,
			Utorid:     payer.Utorid,
			Type:       models.TransactionPurchase,
			Amount:     amount,
			Spent:      decimal.NewNullDecimal(in.Spent),
			Suspicious: actor.Suspicious,
			CreatedBy:  actor.Utorid,
			Remark:     in.Remark,
			Promotions: promos,
		}
		if err := tx.Omit("Promotions.*").Create(&txn).Error; err != nil {
			return err
		}

		if err := s.promotions.consume(tx, payer.ID, oneTimeIDs(promos)); err != nil {
			return err
		}

		earned := 0
		if !txn.Suspicious {
			if err := addPoints(tx, payer, amount); err != nil {
				return err
			}
			earned = amount
		}

		result = PurchaseResult{Transaction: txn, Earned: earned}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransaction(string(models.TransactionPurchase), result.Earned)
	if result.Transaction.Suspicious && s.notifier != nil {
		txn := result.Transaction
		go func() {
			if err := s.notifier.NotifySuspiciousPurchase(context.Background(), SuspiciousPurchaseNotification{
				TransactionID: txn.ID,
				Utorid:        txn.Utorid,
				Cashier:       txn.CreatedBy,
				Spent:         txn.Spent.Decimal.StringFixed(2),
				Amount:        txn.Amount,
			}); err != nil {
				log.Printf("[Ledger] suspicious purchase notification failed: %v", err)
			}
		}()
	}
	return &result, nil
}

// AdjustmentInput describes a manual correction to a user's balance.
type AdjustmentInput struct {
	Utorid       string
	Amount       int
	RelatedID    uint
	PromotionIDs []uint
	Remark       string
}

// Adjust credits or debits a balance against an existing transaction.
func (s *LedgerService) Adjust(ctx context.Context, actor *models.User, in AdjustmentInput) (*models.Transaction, error) {
	if !access.Can(actor.Role, access.Create, access.Adjustments) {
		return nil, permissionErr("Permission denied")
	}
	in.Utorid = strings.ToLower(strings.TrimSpace(in.Utorid))
	if in.Utorid == "" {
		return nil, validationErr("utorid is required")
	}
	if in.Amount == 0 {
		return nil, validationErr("amount must be a non-zero integer")
	}
	if in.RelatedID == 0 {
		return nil, validationErr("relatedId is required")
	}

	var txn models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUserByUtorid(tx, in.Utorid)
		if err != nil {
			return err
		}

		var related models.Transaction
		if err := tx.Select("id").First(&related, in.RelatedID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("Related transaction not found")
			}
			return err
		}

		promos, err := s.promotions.findAll(tx, in.PromotionIDs)
		if err != nil {
			return err
		}

		relatedID := related.ID
		txn = models.Transaction{
			UserID:     user.ID,
			Utorid:     user.Utorid,
			Type:       models.TransactionAdjustment,
			Amount:     in.Amount,
			RelatedID:  &relatedID,
			CreatedBy:  actor.Utorid,
			Remark:     in.Remark,
			Promotions: promos,
		}
		if err := tx.Omit("Promotions.*").Create(&txn).Error; err != nil {
			return err
		}
		if err := s.promotions.consume(tx, user.ID, in.PromotionIDs); err != nil {
			return err
		}
		return addPoints(tx, user, in.Amount)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransaction(string(models.TransactionAdjustment), txn.Amount)
	return &txn, nil
}

// TransferResult holds both sides of a transfer.
type TransferResult struct {
	Sent      models.Transaction
	Received  models.Transaction
	Recipient string
}

// Transfer moves points from sender to the user with recipientID and writes
// one row per party.
func (s *LedgerService) Transfer(ctx context.Context, sender *models.User, recipientID uint, amount int, remark string) (*TransferResult, error) {
	if !access.Can(sender.Role, access.Create, access.Transfers) {
		return nil, permissionErr("Permission denied")
	}
	if amount <= 0 {
		return nil, validationErr("amount must be a positive integer")
	}
	if recipientID == sender.ID {
		return nil, validationErr("Cannot transfer points to yourself")
	}

	var result TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock in id order so two opposite transfers cannot deadlock.
		var from, to *models.User
		var err error
		if sender.ID < recipientID {
			if from, err = lockUserByID(tx, sender.ID); err != nil {
				return err
			}
			if to, err = lockUserByID(tx, recipientID); err != nil {
				return recipientErr(err)
			}
		} else {
			if to, err = lockUserByID(tx, recipientID); err != nil {
				return recipientErr(err)
			}
			if from, err = lockUserByID(tx, sender.ID); err != nil {
				return err
			}
		}

		if !from.Verified {
			return policyErr("Sender is not verified")
		}
		if from.Points < amount {
			return policyErr("Not enough points")
		}

		toID, fromID := to.ID, from.ID
		sent := models.Transaction{
			UserID:    from.ID,
			Utorid:    from.Utorid,
			Type:      models.TransactionTransfer,
			Amount:    -amount,
			RelatedID: &toID,
			CreatedBy: from.Utorid,
			Remark:    remark,
		}
		received := models.Transaction{
			UserID:    to.ID,
			Utorid:    to.Utorid,
			Type:      models.TransactionTransfer,
			Amount:    amount,
			RelatedID: &fromID,
			CreatedBy: from.Utorid,
			Remark:    remark,
		}
		if err := tx.Create(&sent).Error; err != nil {
			return err
		}
		if err := tx.Create(&received).Error; err != nil {
			return err
		}
		if err := addPoints(tx, from, -amount); err != nil {
			return err
		}
		if err := addPoints(tx, to, amount); err != nil {
			return err
		}

		sender.Points = from.Points
		result = TransferResult{Sent: sent, Received: received, Recipient: to.Utorid}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransaction(string(models.TransactionTransfer), amount)
	return &result, nil
}

// Redeem reserves amount points for an external reward. The balance drops
// now; a cashier finalizes the redemption later.
func (s *LedgerService) Redeem(ctx context.Context, user *models.User, amount int, remark string) (*models.Transaction, error) {
	if !access.Can(user.Role, access.Create, access.Redemptions) {
		return nil, permissionErr("Permission denied")
	}
	if amount <= 0 {
		return nil, validationErr("amount must be a positive integer")
	}

	var txn models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockUserByID(tx, user.ID)
		if err != nil {
			return err
		}
		if !locked.Verified {
			return policyErr("User is not verified")
		}
		if locked.Points < amount {
			return policyErr("Not enough points")
		}

		txn = models.Transaction{
			UserID:    locked.ID,
			Utorid:    locked.Utorid,
			Type:      models.TransactionRedemption,
			Amount:    -amount,
			CreatedBy: locked.Utorid,
			Remark:    remark,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		if err := addPoints(tx, locked, -amount); err != nil {
			return err
		}
		user.Points = locked.Points
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransaction(string(models.TransactionRedemption), amount)
	return &txn, nil
}

// ProcessRedemption marks a pending redemption as fulfilled by actor. The
// balance is not touched again.
func (s *LedgerService) ProcessRedemption(ctx context.Context, actor *models.User, id uint) (*models.Transaction, error) {
	if !access.Can(actor.Role, access.Process, access.Redemptions) {
		return nil, permissionErr("Permission denied")
	}

	var txn models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&txn, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("Transaction not found")
			}
			return err
		}
		if txn.Type != models.TransactionRedemption {
			return policyErr("Transaction is not a redemption")
		}
		if txn.Processed {
			return policyErr("Redemption has already been processed")
		}

		processedBy := actor.ID
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(map[string]any{
			"processed":  true,
			"related_id": processedBy,
		}).Error; err != nil {
			return err
		}
		txn.Processed = true
		txn.RelatedID = &processedBy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// SetSuspicious flags or clears a transaction. Flagging claws the amount back
// out of the owner's balance; clearing re-applies it. Setting the current
// value again changes nothing.
func (s *LedgerService) SetSuspicious(ctx context.Context, actor *models.User, id uint, suspicious bool) (*models.Transaction, error) {
	if !access.Can(actor.Role, access.Flag, access.Transactions) {
		return nil, permissionErr("Permission denied")
	}

	var txn models.Transaction
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Preload("Promotions").First(&txn, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("Transaction not found")
			}
			return err
		}
		if txn.Suspicious == suspicious {
			return nil
		}

		owner, err := lockUserByID(tx, txn.UserID)
		if err != nil {
			return err
		}
		delta := txn.Amount
		if suspicious {
			delta = -txn.Amount
		}
		if err := addPoints(tx, owner, delta); err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).
			Update("suspicious", suspicious).Error; err != nil {
			return err
		}
		txn.Suspicious = suspicious
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed && s.notifier != nil {
		n := FlaggedTransactionNotification{
			TransactionID: txn.ID,
			Type:          string(txn.Type),
			Utorid:        txn.Utorid,
			Amount:        txn.Amount,
			Suspicious:    txn.Suspicious,
			FlaggedBy:     actor.Utorid,
		}
		go func() {
			if err := s.notifier.NotifyTransactionFlagged(context.Background(), n); err != nil {
				log.Printf("[Ledger] flag notification failed: %v", err)
			}
		}()
	}
	return &txn, nil
}

// EventRewardInput describes points paid out of an event's budget. An empty
// Utorid rewards every guest.
type EventRewardInput struct {
	Utorid string
	Amount int
	Remark string
}

// AwardEventPoints pays amount to one guest, or to every guest, out of the
// event's remaining budget. Either all recipients are paid or none are.
func (s *LedgerService) AwardEventPoints(ctx context.Context, actor *models.User, eventID uint, in EventRewardInput) ([]models.Transaction, error) {
	if in.Amount <= 0 {
		return nil, validationErr("amount must be a positive integer")
	}
	in.Utorid = strings.ToLower(strings.TrimSpace(in.Utorid))

	var rows []models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}

		if !access.Can(actor.Role, access.Award, access.Events) {
			organizer, err := isOrganizer(tx, event.ID, actor.ID)
			if err != nil {
				return err
			}
			if !organizer {
				return permissionErr("Only organizers or managers can award event points")
			}
		}

		var recipients []models.User
		if in.Utorid != "" {
			user, err := lockUserByUtorid(tx, in.Utorid)
			if err != nil {
				return err
			}
			guest, err := isGuest(tx, event.ID, user.ID)
			if err != nil {
				return err
			}
			if !guest {
				return policyErr("User is not a guest of this event")
			}
			recipients = []models.User{*user}
		} else {
			if err := forUpdate(tx).
				Where("id IN (?)", tx.Table("event_guests").Select("user_id").Where("event_id = ?", event.ID)).
				Order("id").
				Find(&recipients).Error; err != nil {
				return err
			}
		}

		total := in.Amount * len(recipients)
		if total > event.PointsRemain {
			return policyErr("Points not enough")
		}

		eventRef := event.ID
		for i := range recipients {
			txn := models.Transaction{
				UserID:    recipients[i].ID,
				Utorid:    recipients[i].Utorid,
				Type:      models.TransactionEvent,
				Amount:    in.Amount,
				RelatedID: &eventRef,
				CreatedBy: actor.Utorid,
				Remark:    in.Remark,
			}
			if err := tx.Create(&txn).Error; err != nil {
				return err
			}
			if err := addPoints(tx, &recipients[i], in.Amount); err != nil {
				return err
			}
			rows = append(rows, txn)
		}

		if total == 0 {
			return nil
		}
		return tx.Model(&models.Event{}).Where("id = ?", event.ID).UpdateColumns(map[string]any{
			"points_remain":  gorm.Expr("points_remain - ?", total),
			"points_awarded": gorm.Expr("points_awarded + ?", total),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		metrics.RecordTransaction(string(models.TransactionEvent), row.Amount)
	}
	return rows, nil
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	UserID      uint
	Name        string
	CreatedBy   string
	Suspicious  *bool
	PromotionID uint
	Type        models.TransactionType
	RelatedID   *uint
	Amount      *int
	Operator    string
	SortBy      string
	Order       string
	Page        utils.Pagination
}

var transactionSortColumns = map[string]string{
	"id":     "transactions.id",
	"amount": "transactions.amount",
	"type":   "transactions.type",
	"utorid": "transactions.utorid",
}

// List returns one page of transactions matching f and the total match count.
func (s *LedgerService) List(ctx context.Context, f TransactionFilter) ([]models.Transaction, int64, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, validationErr("invalid transaction type")
	}
	if f.RelatedID != nil && f.Type == "" {
		return nil, 0, validationErr("relatedId must be used with type")
	}
	if f.Amount != nil && f.Operator != "gte" && f.Operator != "lte" {
		return nil, 0, validationErr("operator must be gte or lte when amount is given")
	}
	sortColumn := "transactions.id"
	if f.SortBy != "" {
		col, ok := transactionSortColumns[f.SortBy]
		if !ok {
			return nil, 0, validationErr("invalid sortBy")
		}
		sortColumn = col
	}
	order, err := sortOrder(f.Order)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if f.UserID != 0 {
		query = query.Where("transactions.user_id = ?", f.UserID)
	}
	if f.Name != "" {
		like := "%" + strings.ToLower(f.Name) + "%"
		query = query.Where("transactions.user_id IN (?)",
			s.db.Model(&models.User{}).Select("id").Where("LOWER(utorid) LIKE ? OR LOWER(name) LIKE ?", like, like))
	}
	if f.CreatedBy != "" {
		query = query.Where("transactions.created_by = ?", strings.ToLower(f.CreatedBy))
	}
	if f.Suspicious != nil {
		query = query.Where("transactions.suspicious = ?", *f.Suspicious)
	}
	if f.PromotionID != 0 {
		query = query.Where("transactions.id IN (?)",
			s.db.Table("transaction_promotions").Select("transaction_id").Where("promotion_id = ?", f.PromotionID))
	}
	if f.Type != "" {
		query = query.Where("transactions.type = ?", f.Type)
	}
	if f.RelatedID != nil {
		query = query.Where("transactions.related_id = ?", *f.RelatedID)
	}
	if f.Amount != nil {
		if f.Operator == "gte" {
			query = query.Where("transactions.amount >= ?", *f.Amount)
		} else {
			query = query.Where("transactions.amount <= ?", *f.Amount)
		}
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var results []models.Transaction
	if err := query.
		Preload("Promotions").
		Order(sortColumn + " " + order).
		Limit(f.Page.Limit).
		Offset(f.Page.Offset).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, count, nil
}

// Get loads one transaction with its promotions.
func (s *LedgerService) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Preload("Promotions").First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("Transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

func recipientErr(err error) error {
	if KindOf(err) == KindNotFound {
		return notFoundErr("Recipient not found")
	}
	return err
}

func sortOrder(order string) (string, error) {
	switch strings.ToLower(order) {
	case "", "asc":
		return "ASC", nil
	case "desc":
		return "DESC", nil
	}
	return "", validationErr("order must be asc or desc")
}

func oneTimeIDs(promos []models.Promotion) []uint {
	var ids []uint
	for _, p := range promos {
		if p.Type == models.PromotionOneTime {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
