package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// Google talks to Google Calendar on behalf of users.
type Google struct {
	oauth *oauth2.Config
}

// NewGoogle builds a Google provider from OAuth client credentials.
func NewGoogle(clientID, clientSecret, redirectURL string) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the consent page URL. Offline access with forced consent
// makes Google issue a refresh token every time.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a refresh token.
func (g *Google) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("token exchange: no refresh token issued")
	}
	return tok.RefreshToken, nil
}

func (g *Google) service(ctx context.Context, refreshToken string) (*gcal.Service, error) {
	client := g.oauth.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return gcal.NewService(ctx, option.WithHTTPClient(client))
}

// AddEvent inserts e into the user's primary calendar and returns its id.
func (g *Google) AddEvent(ctx context.Context, refreshToken string, e Entry) (string, error) {
	srv, err := g.service(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	created, err := srv.Events.Insert(primaryCalendar, &gcal.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       &gcal.EventDateTime{DateTime: e.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: e.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

// RemoveEvent deletes an entry from the user's primary calendar.
func (g *Google) RemoveEvent(ctx context.Context, refreshToken, entryID string) error {
	srv, err := g.service(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(primaryCalendar, entryID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// ListEvents returns the user's upcoming entries in start order.
func (g *Google) ListEvents(ctx context.Context, refreshToken string) ([]Entry, error) {
	srv, err := g.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	res, err := srv.Events.List(primaryCalendar).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(time.Now().Format(time.RFC3339)).
		MaxResults(100).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	entries := make([]Entry, 0, len(res.Items))
	for _, item := range res.Items {
		entries = append(entries, Entry{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Location:    item.Location,
			Start:       parseEventTime(item.Start),
			End:         parseEventTime(item.End),
		})
	}
	return entries, nil
}

// parseEventTime handles both timed and all-day entries.
func parseEventTime(t *gcal.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed
		}
	}
	if parsed, err := time.Parse(time.DateOnly, t.Date); err == nil {
		return parsed
	}
	return time.Time{}
}
