package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromotionType distinguishes reusable and single-use promotions.
type PromotionType string

const (
	PromotionAutomatic PromotionType = "automatic"
	PromotionOneTime   PromotionType = "one-time"
)

// Valid reports whether t is a known promotion type.
func (t PromotionType) Valid() bool {
	return t == PromotionAutomatic || t == PromotionOneTime
}

// Promotion grants bonus points on qualifying purchases.
type Promotion struct {
	BaseModel
	Name        string              `gorm:"not null" json:"name"`
	Description string              `json:"description"`
	Type        PromotionType       `gorm:"size:16;not null" json:"type"`
	StartTime   time.Time           `gorm:"index;not null" json:"startTime"`
	EndTime     time.Time           `gorm:"index;not null" json:"endTime"`
	MinSpending decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"minSpending"`
	Rate        decimal.NullDecimal `gorm:"type:decimal(8,4)" json:"rate"`
	Points      int                 `gorm:"not null;default:0" json:"points"`

	// Users who have not consumed the promotion yet.
	Users []User `gorm:"many2many:user_promotions" json:"-"`
}

// Active reports whether now falls inside the promotion window.
func (p *Promotion) Active(now time.Time) bool {
	return !now.Before(p.StartTime) && !now.After(p.EndTime)
}
