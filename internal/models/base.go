package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// spent/rate/minSpending are serialized as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// BaseModel provides shared columns for all tables.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}
