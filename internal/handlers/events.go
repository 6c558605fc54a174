package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/access"
	"github.com/example/campuspoints/internal/models"
	"github.com/example/campuspoints/internal/services"
	"github.com/example/campuspoints/internal/utils"
)

// EventHandler serves event, roster and event reward endpoints.
type EventHandler struct {
	events *services.EventService
	ledger *services.LedgerService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *services.EventService, ledger *services.LedgerService) *EventHandler {
	return &EventHandler{events: events, ledger: ledger}
}

type createEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Capacity    *int      `json:"capacity"`
	Points      int       `json:"points"`
}

// Create adds a new unpublished event.
func (h *EventHandler) Create(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createEventRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	event, err := h.events.Create(c.UserContext(), actor, services.EventInput{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		Points:      req.Points,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(eventView(event, true))
}

// List returns a filtered page of events visible to the caller.
func (h *EventHandler) List(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	started, err := queryBool(c, "started")
	if err != nil {
		return err
	}
	ended, err := queryBool(c, "ended")
	if err != nil {
		return err
	}
	showFull, err := queryBool(c, "showFull")
	if err != nil {
		return err
	}
	published, err := queryBool(c, "published")
	if err != nil {
		return err
	}

	events, count, err := h.events.List(c.UserContext(), actor, services.EventFilter{
		Name:      c.Query("name"),
		Location:  c.Query("location"),
		Started:   started,
		Ended:     ended,
		ShowFull:  showFull != nil && *showFull,
		Published: published,
		Page:      utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	full := access.Can(actor.Role, access.Manage, access.Events)
	results := make([]fiber.Map, 0, len(events))
	for i := range events {
		results = append(results, eventListView(&events[i], full))
	}
	return listResponse(c, count, results)
}

// Get returns one event in the view the caller is entitled to.
func (h *EventHandler) Get(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	detail, err := h.events.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(eventView(&detail.Event, detail.Full))
}

type updateEventRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Capacity    *int       `json:"capacity"`
	Points      *int       `json:"points"`
	Published   *bool      `json:"published"`
}

// Update edits an event and echoes the changed fields.
func (h *EventHandler) Update(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	var req updateEventRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	event, changed, err := h.events.Update(c.UserContext(), actor, id, services.EventPatch{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		Points:      req.Points,
		Published:   req.Published,
	})
	if err != nil {
		return err
	}

	full := eventView(event, true)
	out := fiber.Map{
		"id":       event.ID,
		"name":     event.Name,
		"location": event.Location,
	}
	for _, field := range changed {
		if v, ok := full[field]; ok {
			out[field] = v
		}
	}
	return c.JSON(out)
}

// Delete removes an unpublished event.
func (h *EventHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	if err := h.events.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func rosterView(r *services.RosterResult) fiber.Map {
	return fiber.Map{
		"id":         r.Event.ID,
		"name":       r.Event.Name,
		"location":   r.Event.Location,
		"guestAdded": userRef(&r.User),
		"numGuests":  r.Event.NumGuests,
	}
}

// Join RSVPs the caller to an event.
func (h *EventHandler) Join(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	result, err := h.events.Join(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rosterView(result))
}

// Leave withdraws the caller's RSVP.
func (h *EventHandler) Leave(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	if err := h.events.Leave(c.UserContext(), user, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type utoridRequest struct {
	Utorid string `json:"utorid"`
}

// AddGuest puts another user on the guest list.
func (h *EventHandler) AddGuest(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	var req utoridRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Utorid == "" {
		return fiber.NewError(fiber.StatusBadRequest, "utorid is required")
	}

	result, err := h.events.AddGuest(c.UserContext(), actor, id, req.Utorid)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rosterView(result))
}

// RemoveGuest takes a user off the guest list.
func (h *EventHandler) RemoveGuest(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	if err := h.events.RemoveGuest(c.UserContext(), actor, id, userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddOrganizer makes a user an organizer of the event.
func (h *EventHandler) AddOrganizer(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	var req utoridRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Utorid == "" {
		return fiber.NewError(fiber.StatusBadRequest, "utorid is required")
	}

	event, err := h.events.AddOrganizer(c.UserContext(), actor, id, req.Utorid)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         event.ID,
		"name":       event.Name,
		"location":   event.Location,
		"organizers": userRefs(event.Organizers),
	})
}

// RemoveOrganizer drops a user from the event's organizers.
func (h *EventHandler) RemoveOrganizer(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	if err := h.events.RemoveOrganizer(c.UserContext(), actor, id, userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type awardRequest struct {
	Type   models.TransactionType `json:"type"`
	Utorid string                 `json:"utorid"`
	Amount int                    `json:"amount"`
	Remark string                 `json:"remark"`
}

func awardView(t *models.Transaction) fiber.Map {
	return fiber.Map{
		"id":        t.ID,
		"recipient": t.Utorid,
		"awarded":   t.Amount,
		"type":      t.Type,
		"relatedId": t.RelatedID,
		"remark":    t.Remark,
		"createdBy": t.CreatedBy,
	}
}

// Award pays points from the event budget to one guest or every guest.
func (h *EventHandler) Award(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "eventId")
	if err != nil {
		return err
	}
	var req awardRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Type != models.TransactionEvent {
		return fiber.NewError(fiber.StatusBadRequest, "type must be event")
	}

	rows, err := h.ledger.AwardEventPoints(c.UserContext(), actor, id, services.EventRewardInput{
		Utorid: req.Utorid,
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		return err
	}

	if req.Utorid != "" && len(rows) == 1 {
		return c.Status(fiber.StatusCreated).JSON(awardView(&rows[0]))
	}
	results := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		results = append(results, awardView(&rows[i]))
	}
	return c.Status(fiber.StatusCreated).JSON(results)
}
