package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/campuspoints/internal/calendar"
	"github.com/example/campuspoints/internal/services"
)

// GoogleHandler links a user's Google calendar.
type GoogleHandler struct {
	provider calendar.Provider
	users    *services.UserService
}

// NewGoogleHandler constructs a GoogleHandler.
func NewGoogleHandler(provider calendar.Provider, users *services.UserService) *GoogleHandler {
	return &GoogleHandler{provider: provider, users: users}
}

func calendarErr(err error) error {
	if errors.Is(err, calendar.ErrDisabled) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}

// Consent redirects the browser to the provider's consent screen.
func (h *GoogleHandler) Consent(c *fiber.Ctx) error {
	url := h.provider.AuthURL(uuid.NewString())
	if url == "" {
		return calendarErr(calendar.ErrDisabled)
	}
	return c.Redirect(url, fiber.StatusFound)
}

// Callback exchanges the authorization code and stores the refresh token.
func (h *GoogleHandler) Callback(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	token, err := h.provider.Exchange(c.UserContext(), code)
	if err != nil {
		return calendarErr(err)
	}
	if err := h.users.SetCalendarToken(c.UserContext(), user.ID, token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "calendar linked"})
}

// Calendars lists the caller's upcoming calendar entries.
func (h *GoogleHandler) Calendars(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if user.GoogleRefreshToken == "" {
		return fiber.NewError(fiber.StatusBadRequest, "calendar is not linked")
	}

	entries, err := h.provider.ListEvents(c.UserContext(), user.GoogleRefreshToken)
	if err != nil {
		return calendarErr(err)
	}
	if entries == nil {
		entries = []calendar.Entry{}
	}
	return c.JSON(entries)
}
