// Package gcal is the Google Calendar branch: an authorized-client
// capability, calendar listing, paged event listing and normalization into
// the unified event schema. The API performs its own server-side recurrence
// expansion, so no expander runs here.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Client is the calendar-API surface the orchestrator consumes. Tests
// substitute fakes; production uses Service.
type Client interface {
	ListCalendars(ctx context.Context) ([]*calendar.CalendarListEntry, error)
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, pageToken string) (*calendar.Events, error)
}

// Connector hands out an authorized Client, or (nil, nil) when no Google
// account is connected. Token acquisition and refresh happen elsewhere;
// this package only consumes the stored credential.
type Connector interface {
	AuthorizedClient(ctx context.Context) (Client, error)
}

// Service implements Client over the real Google Calendar API.
type Service struct {
	api *calendar.Service
}

// NewService builds a Service from an OAuth config and token.
func NewService(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (*Service, error) {
	if token == nil {
		return nil, errors.New("oauth token is nil")
	}
	api, err := calendar.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, err
	}
	return &Service{api: api}, nil
}

func (s *Service) ListCalendars(ctx context.Context) ([]*calendar.CalendarListEntry, error) {
	resp, err := s.api.CalendarList.List().MinAccessRole("reader").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *Service) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, pageToken string) (*calendar.Events, error) {
	call := s.api.Events.List(calendarID).
		TimeMin(timeMin.UTC().Format(time.RFC3339)).
		TimeMax(timeMax.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(2500).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

// FileConnector reads a stored OAuth token from disk. A missing token file
// means "not connected", not an error.
type FileConnector struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

func (c *FileConnector) AuthorizedClient(ctx context.Context) (Client, error) {
	if c.TokenFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
	return NewService(ctx, conf, &token)
}
