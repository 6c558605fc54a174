package models

import "github.com/shopspring/decimal"

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionTransfer   TransactionType = "transfer"
	TransactionRedemption TransactionType = "redemption"
	TransactionEvent      TransactionType = "event"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionAdjustment, TransactionTransfer, TransactionRedemption, TransactionEvent:
		return true
	}
	return false
}

// Transaction is one immutable ledger row. Only Suspicious and Processed
// change after creation.
//
// RelatedID depends on Type: the adjusted transaction, the transfer
// counterpart user, the event, or the cashier who processed a redemption.
type Transaction struct {
	BaseModel
	UserID     uint                `gorm:"index;not null" json:"-"`
	Utorid     string              `gorm:"index;not null" json:"utorid"`
	Type       TransactionType     `gorm:"size:16;index;not null" json:"type"`
	Amount     int                 `gorm:"not null" json:"amount"`
	Spent      decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"spent,omitempty"`
	RelatedID  *uint               `gorm:"index" json:"relatedId,omitempty"`
	Suspicious bool                `gorm:"not null;default:false" json:"suspicious"`
	Processed  bool                `gorm:"not null;default:false" json:"-"`
	CreatedBy  string              `gorm:"not null" json:"createdBy"`
	Remark     string              `json:"remark"`

	Promotions []Promotion `gorm:"many2many:transaction_promotions" json:"-"`
}

// PromotionIDs lists the ids of the promotions linked to t.
func (t *Transaction) PromotionIDs() []uint {
	ids := make([]uint, 0, len(t.Promotions))
	for _, p := range t.Promotions {
		ids = append(ids, p.ID)
	}
	return ids
}
