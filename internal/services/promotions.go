package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/utils"
)

var hundred = decimal.NewFromInt(100)

// PromotionService evaluates promotions on purchases and manages their lifecycle.
type PromotionService struct {
	db *gorm.DB
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(db *gorm.DB) *PromotionService {
	return &PromotionService{db: db}
}

// Bonus is the extra points a promotion grants on spent. Automatic
// promotions grant none; callers still reference them explicitly.
func Bonus(p *models.Promotion, spent decimal.Decimal) int {
	if p.Type != models.PromotionOneTime {
		return 0
	}
	bonus := p.Points
	if p.Rate.Valid {
		bonus += int(p.Rate.Decimal.Mul(hundred).Mul(spent).Round(0).IntPart())
	}
	return bonus
}

// Evaluate checks every referenced promotion against payer and spent and
// returns the promotions with their combined bonus. It runs inside the
// purchase transaction.
func (s *PromotionService) Evaluate(tx *gorm.DB, payer *models.User, spent decimal.Decimal, ids []uint) ([]models.Promotion, int, error) {
	promos, err := s.findAll(tx, ids)
	if err != nil || len(promos) == 0 {
		return nil, 0, err
	}

	var available []uint
	if err := tx.Table("user_promotions").
		Where("user_id = ?", payer.ID).
		Pluck("promotion_id", &available).Error; err != nil {
		return nil, 0, err
	}
	unused := make(map[uint]bool, len(available))
	for _, id := range available {
		unused[id] = true
	}

	at := now()
	bonus := 0
	for i := range promos {
		p := &promos[i]
		if p.Type == models.PromotionOneTime && !unused[p.ID] {
			return nil, 0, policyErr("Promotion %d has already been used", p.ID)
		}
		if p.MinSpending.Valid && spent.LessThan(p.MinSpending.Decimal) {
			return nil, 0, policyErr("Promotion %d requires a minimum spend of %s", p.ID, p.MinSpending.Decimal.StringFixed(2))
		}
		if at.Before(p.StartTime) {
			return nil, 0, policyErr("Promotion %d has not started", p.ID)
		}
		if at.After(p.EndTime) {
			return nil, 0, policyErr("Promotion %d has expired", p.ID)
		}
		bonus += Bonus(p, spent)
	}
	return promos, bonus, nil
}

// findAll loads the promotions with the given ids, failing if any is missing.
func (s *PromotionService) findAll(tx *gorm.DB, ids []uint) ([]models.Promotion, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var promos []models.Promotion
	if err := tx.Where("id IN ?", ids).Order("id").Find(&promos).Error; err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(promos))
	for _, p := range promos {
		found[p.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, notFoundErr("Promotion %d does not exist", id)
		}
	}
	return promos, nil
}

// consume removes the promotions from the user's unused set.
func (s *PromotionService) consume(tx *gorm.DB, userID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Exec("DELETE FROM user_promotions WHERE user_id = ? AND promotion_id IN ?", userID, ids).Error
}

// attachLive makes every promotion that has not ended available to userID.
func attachLive(tx *gorm.DB, userID uint) error {
	return tx.Exec(
		"INSERT INTO user_promotions (user_id, promotion_id) SELECT ?, id FROM promotions WHERE end_time >= ?",
		userID, now(),
	).Error
}

// PromotionInput holds the fields of a new promotion.
type PromotionInput struct {
	Name        string
	Description string
	Type        models.PromotionType
	StartTime   time.Time
	EndTime     time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      int
}

func validatePromotion(in PromotionInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return validationErr("name is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return validationErr("description is required")
	}
	if !in.Type.Valid() {
		return validationErr("type must be automatic or one-time")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return validationErr("startTime and endTime are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return validationErr("endTime must be after startTime")
	}
	if in.MinSpending != nil && !in.MinSpending.IsPositive() {
		return validationErr("minSpending must be a positive number")
	}
	if in.Rate != nil && !in.Rate.IsPositive() {
		return validationErr("rate must be a positive number")
	}
	if in.Points < 0 {
		return validationErr("points must be a non-negative integer")
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// Create stores a promotion and makes it available to every user.
func (s *PromotionService) Create(ctx context.Context, actor *models.User, in PromotionInput) (*models.Promotion, error) {
	if !access.Can(actor.Role, access.Create, access.Promotions) {
		return nil, permissionErr("Permission denied")
	}
	if err := validatePromotion(in); err != nil {
		return nil, err
	}

	promo := models.Promotion{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		MinSpending: nullDecimal(in.MinSpending),
		Rate:        nullDecimal(in.Rate),
		Points:      in.Points,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&promo).Error; err != nil {
			return err
		}
		return tx.Exec(
			"INSERT INTO user_promotions (user_id, promotion_id) SELECT id, ? FROM users",
			promo.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// PromotionFilter narrows promotion listings.
type PromotionFilter struct {
	Name    string
	Type    models.PromotionType
	Started *bool
	Ended   *bool
	Page    utils.Pagination
}

// List returns a page of promotions visible to actor. Non-managers only see
// promotions that are running now.
func (s *PromotionService) List(ctx context.Context, actor *models.User, f PromotionFilter) ([]models.Promotion, int64, error) {
	if f.Started != nil && f.Ended != nil {
		return nil, 0, validationErr("started and ended cannot both be specified")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, validationErr("type must be automatic or one-time")
	}

	at := now()
	query := s.db.WithContext(ctx).Model(&models.Promotion{})
	if access.Can(actor.Role, access.Manage, access.Promotions) {
		if f.Started != nil {
			if *f.Started {
				query = query.Where("start_time <= ?", at)
			} else {
				query = query.Where("start_time > ?", at)
			}
		}
		if f.Ended != nil {
			if *f.Ended {
				query = query.Where("end_time < ?", at)
			} else {
				query = query.Where("end_time >= ?", at)
			}
		}
	} else {
		query = query.Where("start_time <= ? AND end_time >= ?", at, at)
	}
	if f.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var promos []models.Promotion
	if err := query.Order("start_time ASC, id ASC").
		Limit(f.Page.Limit).
		Offset(f.Page.Offset).
		Find(&promos).Error; err != nil {
		return nil, 0, err
	}
	return promos, count, nil
}

// Get loads a promotion. Non-managers cannot see inactive promotions.
func (s *PromotionService) Get(ctx context.Context, actor *models.User, id uint) (*models.Promotion, error) {
	promo, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor.Role, access.Manage, access.Promotions) && !promo.Active(now()) {
		return nil, notFoundErr("Promotion not found")
	}
	return promo, nil
}

func (s *PromotionService) find(db *gorm.DB, id uint) (*models.Promotion, error) {
	var promo models.Promotion
	if err := db.First(&promo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("Promotion not found")
		}
		return nil, err
	}
	return &promo, nil
}

// PromotionPatch holds optional promotion updates.
type PromotionPatch struct {
	Name        *string
	Description *string
	Type        *models.PromotionType
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int
}

// Update edits a promotion that has not started yet and returns the names of
// the fields that changed.
func (s *PromotionService) Update(ctx context.Context, actor *models.User, id uint, p PromotionPatch) (*models.Promotion, []string, error) {
	if !access.Can(actor.Role, access.Update, access.Promotions) {
		return nil, nil, permissionErr("Permission denied")
	}

	var promo *models.Promotion
	var changed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		promo, err = s.find(forUpdate(tx), id)
		if err != nil {
			return err
		}
		at := now()
		if promo.StartTime.Before(at) {
			return policyErr("Cannot update a promotion that has already started")
		}

		in := PromotionInput{
			Name:        promo.Name,
			Description: promo.Description,
			Type:        promo.Type,
			StartTime:   promo.StartTime,
			EndTime:     promo.EndTime,
			Points:      promo.Points,
		}
		if promo.MinSpending.Valid {
			in.MinSpending = &promo.MinSpending.Decimal
		}
		if promo.Rate.Valid {
			in.Rate = &promo.Rate.Decimal
		}

		updates := map[string]any{}
		if p.Name != nil {
			in.Name = *p.Name
			updates["name"] = strings.TrimSpace(*p.Name)
			changed = append(changed, "name")
		}
		if p.Description != nil {
			in.Description = *p.Description
			updates["description"] = strings.TrimSpace(*p.Description)
			changed = append(changed, "description")
		}
		if p.Type != nil {
			in.Type = *p.Type
			updates["type"] = *p.Type
			changed = append(changed, "type")
		}
		if p.StartTime != nil {
			if p.StartTime.Before(at) {
				return validationErr("startTime cannot be in the past")
			}
			in.StartTime = p.StartTime.UTC()
			updates["start_time"] = in.StartTime
			changed = append(changed, "startTime")
		}
		if p.EndTime != nil {
			in.EndTime = p.EndTime.UTC()
			updates["end_time"] = in.EndTime
			changed = append(changed, "endTime")
		}
		if p.MinSpending != nil {
			in.MinSpending = p.MinSpending
			updates["min_spending"] = decimal.NewNullDecimal(*p.MinSpending)
			changed = append(changed, "minSpending")
		}
		if p.Rate != nil {
			in.Rate = p.Rate
			updates["rate"] = decimal.NewNullDecimal(*p.Rate)
			changed = append(changed, "rate")
		}
		if p.Points != nil {
			in.Points = *p.Points
			updates["points"] = *p.Points
			changed = append(changed, "points")
		}
		if err := validatePromotion(in); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(promo).Updates(updates).Error; err != nil {
			return err
		}
		promo.Name, promo.Description, promo.Type = strings.TrimSpace(in.Name), strings.TrimSpace(in.Description), in.Type
		promo.StartTime, promo.EndTime, promo.Points = in.StartTime, in.EndTime, in.Points
		promo.MinSpending, promo.Rate = nullDecimal(in.MinSpending), nullDecimal(in.Rate)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return promo, changed, nil
}

// Delete removes a promotion that has not started yet.
func (s *PromotionService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !access.Can(actor.Role, access.Delete, access.Promotions) {
		return permissionErr("Permission denied")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promo, err := s.find(forUpdate(tx), id)
		if err != nil {
			return err
		}
		if promo.StartTime.Before(now()) {
			return policyErr("Cannot delete a promotion that has already started")
		}
		if err := tx.Exec("DELETE FROM user_promotions WHERE promotion_id = ?", promo.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM transaction_promotions WHERE promotion_id = ?", promo.ID).Error; err != nil {
			return err
		}
		return tx.Delete(promo).Error
	})
}
