package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/calendar"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/utils"
)

// EventService manages events and their guest and organizer rosters.
type EventService struct {
	db       *gorm.DB
	calendar calendar.Calendar
}

// NewEventService constructs an EventService. cal may be nil to disable
// calendar sync.
func NewEventService(db *gorm.DB, cal calendar.Calendar) *EventService {
	return &EventService{db: db, calendar: cal}
}

// EventInput holds the fields of a new event.
type EventInput struct {
	Name        string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    *int
	Points      int
}

// Create stores a new unpublished event with its point budget.
func (s *EventService) Create(ctx context.Context, actor *models.User, in EventInput) (*models.Event, error) {
	if !access.Can(actor.Role, access.Create, access.Events) {
		return nil, permissionErr("Permission denied")
	}
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, validationErr("name is required")
	case strings.TrimSpace(in.Description) == "":
		return nil, validationErr("description is required")
	case strings.TrimSpace(in.Location) == "":
		return nil, validationErr("location is required")
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return nil, validationErr("startTime and endTime are required")
	case !in.EndTime.After(in.StartTime):
		return nil, validationErr("endTime must be after startTime")
	case in.Capacity != nil && *in.Capacity <= 0:
		return nil, validationErr("capacity must be a positive integer or null")
	case in.Points <= 0:
		return nil, validationErr("points must be a positive integer")
	}

	event := models.Event{
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		StartTime:    in.StartTime.UTC(),
		EndTime:      in.EndTime.UTC(),
		Capacity:     in.Capacity,
		PointsRemain: in.Points,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// EventFilter narrows event listings.
type EventFilter struct {
	Name      string
	Location  string
	Started   *bool
	Ended     *bool
	ShowFull  bool
	Published *bool
	Page      utils.Pagination
}

// List returns a page of events visible to actor and the total match count.
// Non-managers only see published events that have not ended.
func (s *EventService) List(ctx context.Context, actor *models.User, f EventFilter) ([]models.Event, int64, error) {
	if f.Started != nil && f.Ended != nil {
		return nil, 0, validationErr("started and ended cannot both be specified")
	}

	at := now()
	query := s.db.WithContext(ctx).Model(&models.Event{})
	if access.Can(actor.Role, access.Manage, access.Events) {
		if f.Published != nil {
			query = query.Where("published = ?", *f.Published)
		}
	} else {
		query = query.Where("published = ? AND end_time >= ?", true, at)
	}
	if f.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.Location != "" {
		query = query.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
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
	if !f.ShowFull {
		query = query.Where("capacity IS NULL OR num_guests < capacity")
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var events []models.Event
	if err := query.Order("start_time ASC, id ASC").
		Limit(f.Page.Limit).
		Offset(f.Page.Offset).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, count, nil
}

// EventDetail is an event together with whether the caller may see all of it.
type EventDetail struct {
	Event models.Event
	Full  bool
}

// Get loads an event. Managers and the event's organizers get the full view;
// everyone else gets the public view of published events only.
func (s *EventService) Get(ctx context.Context, actor *models.User, id uint) (*EventDetail, error) {
	db := s.db.WithContext(ctx)
	var event models.Event
	if err := db.Preload("Organizers").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("Event not found")
		}
		return nil, err
	}

	full := access.Can(actor.Role, access.Manage, access.Events)
	if !full {
		organizer, err := isOrganizer(db, event.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		full = organizer
	}
	if !full && !event.Published {
		return nil, notFoundErr("Event not found")
	}
	if full {
		if err := db.Model(&event).Association("Guests").Find(&event.Guests); err != nil {
			return nil, err
		}
	}
	return &EventDetail{Event: event, Full: full}, nil
}

// EventPatch holds optional event updates.
type EventPatch struct {
	Name        *string
	Description *string
	Location    *string
	StartTime   *time.Time
	EndTime     *time.Time
	Capacity    *int
	Points      *int
	Published   *bool
}

// Update edits an event that has not started and returns the names of the
// fields that changed. Budget and publishing are manager-only.
func (s *EventService) Update(ctx context.Context, actor *models.User, id uint, p EventPatch) (*models.Event, []string, error) {
	manager := access.Can(actor.Role, access.Update, access.Events)
	if !manager && (p.Points != nil || p.Published != nil) {
		return nil, nil, permissionErr("Only managers can change points or publish events")
	}

	var event *models.Event
	var changed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if event, err = lockEvent(tx, id); err != nil {
			return err
		}
		if !manager {
			organizer, err := isOrganizer(tx, event.ID, actor.ID)
			if err != nil {
				return err
			}
			if !organizer {
				return permissionErr("Only organizers or managers can update this event")
			}
		}

		at := now()
		if event.Started(at) {
			return policyErr("Cannot update an event that has already started")
		}

		updates := map[string]any{}
		set := func(column, field string, value any) {
			updates[column] = value
			changed = append(changed, field)
		}

		if p.Name != nil {
			if strings.TrimSpace(*p.Name) == "" {
				return validationErr("name cannot be empty")
			}
			event.Name = strings.TrimSpace(*p.Name)
			set("name", "name", event.Name)
		}
		if p.Description != nil {
			if strings.TrimSpace(*p.Description) == "" {
				return validationErr("description cannot be empty")
			}
			event.Description = strings.TrimSpace(*p.Description)
			set("description", "description", event.Description)
		}
		if p.Location != nil {
			if strings.TrimSpace(*p.Location) == "" {
				return validationErr("location cannot be empty")
			}
			event.Location = strings.TrimSpace(*p.Location)
			set("location", "location", event.Location)
		}
		if p.StartTime != nil {
			if p.StartTime.Before(at) {
				return validationErr("startTime cannot be in the past")
			}
			event.StartTime = p.StartTime.UTC()
			set("start_time", "startTime", event.StartTime)
		}
		if p.EndTime != nil {
			event.EndTime = p.EndTime.UTC()
			set("end_time", "endTime", event.EndTime)
		}
		if !event.EndTime.After(event.StartTime) {
			return validationErr("endTime must be after startTime")
		}
		if p.Capacity != nil {
			if *p.Capacity <= 0 {
				return validationErr("capacity must be a positive integer")
			}
			if *p.Capacity < event.NumGuests {
				return policyErr("Capacity cannot be below the current number of guests")
			}
			capacity := *p.Capacity
			event.Capacity = &capacity
			set("capacity", "capacity", capacity)
		}
		if p.Points != nil {
			if *p.Points <= 0 {
				return validationErr("points must be a positive integer")
			}
			if *p.Points < event.PointsAwarded {
				return policyErr("Points cannot be below the points already awarded")
			}
			event.PointsRemain = *p.Points - event.PointsAwarded
			set("points_remain", "pointsRemain", event.PointsRemain)
		}
		if p.Published != nil {
			if !*p.Published {
				return validationErr("published can only be set to true")
			}
			event.Published = true
			set("published", "published", true)
		}

		if len(updates) == 0 {
			return nil
		}
		return tx.Model(event).Updates(updates).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return event, changed, nil
}

// Delete removes an unpublished event and its rosters.
func (s *EventService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !access.Can(actor.Role, access.Delete, access.Events) {
		return permissionErr("Permission denied")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		if event.Published {
			return policyErr("Cannot delete a published event")
		}
		for _, table := range []string{"event_guests", "event_organizers"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE event_id = ?", event.ID).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.GoogleCalendarEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(event).Error
	})
}

// RosterResult is the event and the user affected by a roster change.
type RosterResult struct {
	Event models.Event
	User  models.User
}

// Join adds user to the guest list of an event that has not ended.
func (s *EventService) Join(ctx context.Context, user *models.User, id uint) (*RosterResult, error) {
	var result RosterResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		if err := s.admitGuest(tx, event, user); err != nil {
			return err
		}
		result = RosterResult{Event: *event, User: *user}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.addCalendarEntry(ctx, user, &result.Event)
	return &result, nil
}

// Leave removes user from the guest list of an event that has not ended.
func (s *EventService) Leave(ctx context.Context, user *models.User, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		return s.dropGuest(tx, event, user.ID)
	})
	if err != nil {
		return err
	}

	s.unlinkCalendar(ctx, user, id)
	return nil
}

// AddGuest puts the user with utorid on the guest list. Organizers may add
// guests to their own published events; managers to any event.
func (s *EventService) AddGuest(ctx context.Context, actor *models.User, id uint, utorid string) (*RosterResult, error) {
	var result RosterResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		if !access.Can(actor.Role, access.Create, access.Guests) {
			organizer, err := isOrganizer(tx, event.ID, actor.ID)
			if err != nil {
				return err
			}
			if !organizer {
				return permissionErr("Only organizers or managers can add guests")
			}
			if !event.Published {
				return notFoundErr("Event not found")
			}
		}

		user, err := lockUserByUtorid(tx, strings.ToLower(strings.TrimSpace(utorid)))
		if err != nil {
			return err
		}
		if err := s.admitGuest(tx, event, user); err != nil {
			return err
		}
		result = RosterResult{Event: *event, User: *user}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoveGuest takes the user with userID off the guest list.
func (s *EventService) RemoveGuest(ctx context.Context, actor *models.User, id, userID uint) error {
	if !access.Can(actor.Role, access.Delete, access.Guests) {
		return permissionErr("Permission denied")
	}
	var guest models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		ok, err := isGuest(tx, event.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return notFoundErr("User is not a guest of this event")
		}
		if err := tx.First(&guest, userID).Error; err != nil {
			return err
		}
		return s.removeGuestRow(tx, event, userID)
	})
	if err != nil {
		return err
	}

	s.unlinkCalendar(ctx, &guest, id)
	return nil
}

// AddOrganizer makes the user with utorid an organizer of the event.
func (s *EventService) AddOrganizer(ctx context.Context, actor *models.User, id uint, utorid string) (*models.Event, error) {
	if !access.Can(actor.Role, access.Manage, access.Organizers) {
		return nil, permissionErr("Permission denied")
	}
	var event *models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if event, err = lockEvent(tx, id); err != nil {
			return err
		}
		user, err := lockUserByUtorid(tx, strings.ToLower(strings.TrimSpace(utorid)))
		if err != nil {
			return err
		}
		if event.Ended(now()) {
			return goneErr("Event has ended")
		}
		guest, err := isGuest(tx, event.ID, user.ID)
		if err != nil {
			return err
		}
		if guest {
			return conflictErr("User is a guest of this event; remove them as a guest first")
		}
		organizer, err := isOrganizer(tx, event.ID, user.ID)
		if err != nil {
			return err
		}
		if organizer {
			return conflictErr("User is already an organizer")
		}
		if err := tx.Exec("INSERT INTO event_organizers (event_id, user_id) VALUES (?, ?)", event.ID, user.ID).Error; err != nil {
			return err
		}
		return tx.Model(event).Association("Organizers").Find(&event.Organizers)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// RemoveOrganizer removes the user with userID from the event's organizers.
func (s *EventService) RemoveOrganizer(ctx context.Context, actor *models.User, id, userID uint) error {
	if !access.Can(actor.Role, access.Manage, access.Organizers) {
		return permissionErr("Permission denied")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, id)
		if err != nil {
			return err
		}
		ok, err := isOrganizer(tx, event.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return notFoundErr("User is not an organizer of this event")
		}
		return tx.Exec("DELETE FROM event_organizers WHERE event_id = ? AND user_id = ?", event.ID, userID).Error
	})
}

// admitGuest enforces the roster rules and adds user as a guest. The event
// row must be locked by the caller.
func (s *EventService) admitGuest(tx *gorm.DB, event *models.Event, user *models.User) error {
	guest, err := isGuest(tx, event.ID, user.ID)
	if err != nil {
		return err
	}
	if guest {
		return conflictErr("User is already a guest")
	}
	organizer, err := isOrganizer(tx, event.ID, user.ID)
	if err != nil {
		return err
	}
	if organizer {
		return conflictErr("Organizers cannot be guests of their own event")
	}
	if event.Ended(now()) {
		return goneErr("Event has ended")
	}
	if event.Full() {
		return policyErr("Event is full")
	}

	if err := tx.Exec("INSERT INTO event_guests (event_id, user_id) VALUES (?, ?)", event.ID, user.ID).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Event{}).Where("id = ?", event.ID).
		UpdateColumn("num_guests", gorm.Expr("num_guests + 1")).Error; err != nil {
		return err
	}
	event.NumGuests++
	return nil
}

func (s *EventService) dropGuest(tx *gorm.DB, event *models.Event, userID uint) error {
	guest, err := isGuest(tx, event.ID, userID)
	if err != nil {
		return err
	}
	if !guest {
		return notFoundErr("User is not a guest of this event")
	}
	if event.Ended(now()) {
		return goneErr("Event has ended")
	}
	return s.removeGuestRow(tx, event, userID)
}

func (s *EventService) removeGuestRow(tx *gorm.DB, event *models.Event, userID uint) error {
	if err := tx.Exec("DELETE FROM event_guests WHERE event_id = ? AND user_id = ?", event.ID, userID).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Event{}).Where("id = ?", event.ID).
		UpdateColumn("num_guests", gorm.Expr("num_guests - 1")).Error; err != nil {
		return err
	}
	event.NumGuests--
	return nil
}

// addCalendarEntry mirrors an RSVP into the user's calendar. Failures are
// logged and never undo the RSVP.
func (s *EventService) addCalendarEntry(ctx context.Context, user *models.User, event *models.Event) {
	if s.calendar == nil || user.GoogleRefreshToken == "" {
		return
	}
	googleID, err := s.calendar.AddEvent(ctx, user.GoogleRefreshToken, calendar.Entry{
		Summary:     event.Name,
		Description: event.Description,
		Location:    event.Location,
		Start:       event.StartTime,
		End:         event.EndTime,
	})
	if err != nil {
		log.Printf("[Calendar] add entry for user %d event %d: %v", user.ID, event.ID, err)
		return
	}
	link := models.GoogleCalendarEvent{UserID: user.ID, EventID: event.ID, GoogleEventID: googleID}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		log.Printf("[Calendar] store link for user %d event %d: %v", user.ID, event.ID, err)
	}
}

// unlinkCalendar removes the RSVP's calendar entry for users who linked a
// calendar. Failures are logged only.
func (s *EventService) unlinkCalendar(ctx context.Context, user *models.User, eventID uint) {
	if user.GoogleRefreshToken == "" {
		return
	}
	if err := s.removeCalendarEntry(ctx, user, eventID); err != nil {
		log.Printf("[Calendar] remove entry for user %d event %d: %v", user.ID, eventID, err)
	}
}

// removeCalendarEntry deletes the calendar entry created for the RSVP. It
// fails with NotFound when no entry was recorded.
func (s *EventService) removeCalendarEntry(ctx context.Context, user *models.User, eventID uint) error {
	db := s.db.WithContext(ctx)
	var link models.GoogleCalendarEvent
	if err := db.Where("user_id = ? AND event_id = ?", user.ID, eventID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundErr("No calendar entry for this event")
		}
		return err
	}
	if s.calendar != nil && user.GoogleRefreshToken != "" {
		if err := s.calendar.RemoveEvent(ctx, user.GoogleRefreshToken, link.GoogleEventID); err != nil {
			return err
		}
	}
	return db.Delete(&link).Error
}
