package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const (
	// DefaultEndpoint is iCloud's CalDAV server.
	DefaultEndpoint = "https://caldav.icloud.com/"

	eventDuration = time.Hour
	reminderLead  = "-PT30M"
)

// basicAuthTransport adds Basic Auth and a user agent to each request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "eduplanner/1.0")
	return t.Transport.RoundTrip(req)
}

// Client creates events in a single calendar on a CalDAV server. The calendar is
// looked up by name on the first CreateEvent, so building a Client sends no requests.
type Client struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	endpoint     *url.URL
	calendarName string

	mu           sync.Mutex
	calendarPath string
}

// NewClient prepares a client for the calendar named calendarName on endpoint.
func NewClient(logger *slog.Logger, endpoint, username, password, calendarName string) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav endpoint %q: %w", endpoint, err)
	}

	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Client{caldavClient: caldavClient, logger: logger, endpoint: u, calendarName: calendarName}, nil
}

// calendar returns the resolved calendar path, discovering it on first use. A failed
// lookup is retried by the next call.
func (c *Client) calendar(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calendarPath != "" {
		return c.calendarPath, nil
	}

	c.logger.Info("Finding CalDAV calendar", "calendarName", c.calendarName)
	calendarPath, err := c.findCalendar(ctx, c.calendarName)
	if err != nil {
		return "", fmt.Errorf("could not find calendar '%s': %w", c.calendarName, err)
	}
	c.calendarPath = calendarPath
	c.logger.Info("Found CalDAV calendar", "path", calendarPath)
	return calendarPath, nil
}

// CreateEvent stores a one-hour event starting at when and returns the URL of the
// stored calendar object. The wall clock of when is submitted as UTC.
func (c *Client) CreateEvent(ctx context.Context, name string, when time.Time) (string, error) {
	calendarPath, err := c.calendar(ctx)
	if err != nil {
		return "", err
	}

	uid := uuid.New().String()
	cal := newCalendar(uid, name, when, time.Now().UTC())
	objectPath := path.Join(calendarPath, uid+".ics")

	c.logger.Debug("Uploading CalDAV event", "summary", name, "path", objectPath)
	obj, err := c.caldavClient.PutCalendarObject(ctx, objectPath, cal)
	if err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	c.logger.Info("Created CalDAV event", "summary", name, "uid", uid)
	return c.objectURL(obj.Path), nil
}

func (c *Client) objectURL(p string) string {
	if p == "" {
		return ""
	}
	ref := &url.URL{Path: p}
	return c.endpoint.ResolveReference(ref).String()
}

// newCalendar wraps a single VEVENT with a display alarm in a VCALENDAR.
func newCalendar(uid, name string, when, stamp time.Time) *ical.Calendar {
	start := time.Date(when.Year(), when.Month(), when.Day(), when.Hour(), when.Minute(), 0, 0, time.UTC)

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, name)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(eventDuration))

	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, name)
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = reminderLead
	alarm.Props.Set(trigger)
	ve.Children = append(ve.Children, alarm)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//eduplanner//EN")
	cal.Children = append(cal.Children, ve)
	return cal
}

// findCalendar discovers the user's calendars and returns the path of the one named name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return strings.TrimSuffix(cal.Path, "/"), nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
