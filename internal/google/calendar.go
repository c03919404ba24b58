package google

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// DefaultCredentialsFile is the OAuth client file downloaded from the Google console.
	DefaultCredentialsFile = "credentials.json"
	// DefaultCalendarID targets the authenticated user's main calendar.
	DefaultCalendarID = "primary"

	eventDuration = time.Hour
)

// CalendarClient creates events in a Google Calendar.
type CalendarClient struct {
	service    *calendar.Service
	calendarID string
	logger     *slog.Logger
}

// NewClient creates a Google Calendar client whose requests are authorized by src.
// Extra options are appended after the authorized HTTP client, which lets tests point
// the service at a fake endpoint.
func NewClient(ctx context.Context, logger *slog.Logger, src oauth2.TokenSource, calendarID string, opts ...option.ClientOption) (*CalendarClient, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}

	client := oauth2.NewClient(ctx, src)
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{service: service, calendarID: calendarID, logger: logger}, nil
}

// CreateEvent inserts a one-hour event starting at when and returns its web link.
// The wall clock of when is submitted as UTC.
func (c *CalendarClient) CreateEvent(ctx context.Context, name string, when time.Time) (string, error) {
	start := time.Date(when.Year(), when.Month(), when.Day(), when.Hour(), when.Minute(), 0, 0, time.UTC)
	event := &calendar.Event{
		Summary: name,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: start.Add(eventDuration).Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}

	c.logger.Debug("Inserting Google Calendar event", "summary", name, "start", event.Start.DateTime, "calendarID", c.calendarID)
	created, err := c.service.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	c.logger.Info("Created Google Calendar event", "summary", name, "id", created.Id)
	return created.HtmlLink, nil
}

// GetOAuthConfig returns the OAuth2 config for the calendar scope.
// It prioritizes the client ID and secret over the credentials file.
func GetOAuthConfig(clientID, clientSecret, credentialsFile string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	if credentialsFile == "" {
		credentialsFile = DefaultCredentialsFile
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("%s not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place the credentials file in the working directory", credentialsFile)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}
