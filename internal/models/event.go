package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the minute-precision layout used for storage and display.
const TimeLayout = "2006-01-02 15:04"

// Event is a named point in time the user wants tracked and mirrored to a calendar.
// ScheduledAt holds the wall clock the user entered; its location is always UTC.
type Event struct {
	Name        string
	ScheduledAt time.Time
}

// record is the on-disk shape of an Event.
type record struct {
	Name string `json:"event_name"`
	Time string `json:"event_time"`
}

// NewEvent builds an Event, truncating the time to the minute.
func NewEvent(name string, at time.Time) Event {
	return Event{Name: name, ScheduledAt: Wall(at)}
}

// Wall returns t's wall clock, truncated to the minute, as a UTC time.
func Wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// ParseTime parses a "YYYY-MM-DD HH:MM" string as a naive wall clock.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, strings.TrimSpace(s))
}

// FormattedTime returns ScheduledAt in TimeLayout.
func (e Event) FormattedTime() string {
	return e.ScheduledAt.Format(TimeLayout)
}

// String renders the event the way listings show it.
func (e Event) String() string {
	return fmt.Sprintf("%s at %s", e.Name, e.FormattedTime())
}

// MarshalJSON writes the {"event_name", "event_time"} record used by the events file.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{Name: e.Name, Time: e.FormattedTime()})
}

// UnmarshalJSON reads an events file record, rejecting times not in TimeLayout.
func (e *Event) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	t, err := ParseTime(r.Time)
	if err != nil {
		return fmt.Errorf("invalid event_time %q for event %q: %w", r.Time, r.Name, err)
	}
	e.Name = r.Name
	e.ScheduledAt = t
	return nil
}
