package models

import "time"

// Event is a scheduled activity with a guest roster and a point budget.
type Event struct {
	BaseModel
	Name          string    `gorm:"not null" json:"name"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartTime     time.Time `gorm:"index;not null" json:"startTime"`
	EndTime       time.Time `gorm:"index;not null" json:"endTime"`
	Capacity      *int      `json:"capacity"`
	NumGuests     int       `gorm:"not null;default:0" json:"numGuests"`
	PointsRemain  int       `gorm:"not null;default:0" json:"pointsRemain"`
	PointsAwarded int       `gorm:"not null;default:0" json:"pointsAwarded"`
	Published     bool      `gorm:"not null;default:false" json:"published"`

	Organizers []User `gorm:"many2many:event_organizers" json:"organizers,omitempty"`
	Guests     []User `gorm:"many2many:event_guests" json:"guests,omitempty"`
}

// Started reports whether the event has begun at now.
func (e *Event) Started(now time.Time) bool {
	return !now.Before(e.StartTime)
}

// Ended reports whether the event is over at now.
func (e *Event) Ended(now time.Time) bool {
	return e.EndTime.Before(now)
}

// Full reports whether the guest list has reached capacity.
func (e *Event) Full() bool {
	return e.Capacity != nil && e.NumGuests >= *e.Capacity
}

// GoogleCalendarEvent links an RSVP to the calendar entry created for it.
type GoogleCalendarEvent struct {
	BaseModel
	UserID        uint   `gorm:"uniqueIndex:idx_calendar_user_event;not null"`
	EventID       uint   `gorm:"uniqueIndex:idx_calendar_user_event;not null"`
	GoogleEventID string `gorm:"not null"`
}
