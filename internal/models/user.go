package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is a user's permission tier.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var roleRank = map[Role]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// User is a member of the loyalty program.
type User struct {
	BaseModel
	Utorid             string          `gorm:"uniqueIndex;size:8;not null" json:"utorid"`
	Name               string          `gorm:"size:50" json:"name"`
	Email              string          `gorm:"uniqueIndex;not null" json:"email"`
	Role               Role            `gorm:"size:16;default:regular;not null" json:"role"`
	Points             int             `gorm:"not null;default:0" json:"points"`
	Verified           bool            `gorm:"not null;default:false" json:"verified"`
	Suspicious         bool            `gorm:"not null;default:false" json:"suspicious"`
	Birthday           *datatypes.Date `json:"birthday"`
	AvatarURL          string          `json:"avatarUrl"`
	LastLogin          *time.Time      `json:"lastLogin"`
	Activated          *time.Time      `json:"-"`
	PasswordHash       string          `json:"-"`
	ResetToken         *string         `gorm:"uniqueIndex" json:"-"`
	ResetExpiresAt     *time.Time      `json:"-"`
	GoogleRefreshToken string          `json:"-"`

	Promotions      []Promotion `gorm:"many2many:user_promotions" json:"promotions,omitempty"`
	EventsOrganized []Event     `gorm:"many2many:event_organizers" json:"-"`
	EventsAttended  []Event     `gorm:"many2many:event_guests" json:"-"`
}

// BeforeSave normalizes identifiers.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Utorid = strings.ToLower(strings.TrimSpace(u.Utorid))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = RoleRegular
	}
	return nil
}

// IsActivated reports whether the user has ever authenticated.
func (u *User) IsActivated() bool {
	return u.Activated != nil
}
