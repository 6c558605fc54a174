package services

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/campuspoints/internal/models"
)

// now is the service clock. Times are kept in UTC so that comparisons in SQL
// and in Go agree.
var now = func() time.Time {
	return time.Now().UTC()
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func lockUserByID(tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := forUpdate(tx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("User not found")
		}
		return nil, err
	}
	return &user, nil
}

func lockUserByUtorid(tx *gorm.DB, utorid string) (*models.User, error) {
	var user models.User
	if err := forUpdate(tx).Where("utorid = ?", utorid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("User not found")
		}
		return nil, err
	}
	return &user, nil
}

func lockEvent(tx *gorm.DB, id uint) (*models.Event, error) {
	var event models.Event
	if err := forUpdate(tx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("Event not found")
		}
		return nil, err
	}
	return &event, nil
}

// addPoints applies delta to the user's balance in place. The caller must
// hold the row lock and write the matching transaction row in the same tx.
func addPoints(tx *gorm.DB, user *models.User, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := tx.Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumn("points", gorm.Expr("points + ?", delta)).Error; err != nil {
		return err
	}
	user.Points += delta
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isGuest(tx *gorm.DB, eventID, userID uint) (bool, error) {
	return rosterHas(tx, "event_guests", eventID, userID)
}

func isOrganizer(tx *gorm.DB, eventID, userID uint) (bool, error) {
	return rosterHas(tx, "event_organizers", eventID, userID)
}

func rosterHas(tx *gorm.DB, table string, eventID, userID uint) (bool, error) {
	var n int64
	err := tx.Table(table).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&n).Error
	return n > 0, err
}
