// Package calendar mirrors event RSVPs into a user's external calendar.
// Every call is keyed by the user's stored refresh credential, which is
// treated as opaque.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned when no calendar provider is configured.
var ErrDisabled = errors.New("calendar integration is not configured")

// Entry is one calendar event.
type Entry struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Calendar adds, removes and lists entries for a user.
type Calendar interface {
	AddEvent(ctx context.Context, refreshToken string, e Entry) (string, error)
	RemoveEvent(ctx context.Context, refreshToken, entryID string) error
	ListEvents(ctx context.Context, refreshToken string) ([]Entry, error)
}

// Authorizer runs the OAuth consent flow that yields a refresh credential.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Provider is a calendar backend with its consent flow.
type Provider interface {
	Calendar
	Authorizer
}

// Disabled is the Provider used when no credentials are configured.
type Disabled struct{}

func (Disabled) AddEvent(context.Context, string, Entry) (string, error) { return "", ErrDisabled }
func (Disabled) RemoveEvent(context.Context, string, string) error       { return ErrDisabled }
func (Disabled) ListEvents(context.Context, string) ([]Entry, error)     { return nil, ErrDisabled }
func (Disabled) AuthURL(string) string                                   { return "" }
func (Disabled) Exchange(context.Context, string) (string, error)        { return "", ErrDisabled }
