package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eduplanner/internal/models"
)

// Kind tags a scheduling failure so callers can branch without reading messages.
type Kind int

// Failure kinds.
const (
	KindValidation Kind = iota + 1
	KindRemote
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error is returned by every failed Schedule call.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation messages.
const (
	MsgEmptyName   = "Event name cannot be empty."
	MsgInvalidTime = "invalid date/time format"
	MsgPastTime    = "Event date and time must be in the future."
)

// Describe renders err as the message shown to the user.
func Describe(err error) string {
	var se *Error
	if !errors.As(err, &se) {
		return fmt.Sprintf("Error: %v", err)
	}
	switch se.Kind {
	case KindValidation:
		return "Error: " + se.Error()
	case KindRemote:
		return fmt.Sprintf("Error scheduling event: %v", se.Err)
	case KindPersistence:
		return fmt.Sprintf("Error saving events: %v", se.Err)
	}
	return "Error: " + se.Error()
}

// KindOf returns the Kind carried by err, or 0.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Calendar mirrors an event into an external calendar and returns a link to it.
type Calendar interface {
	CreateEvent(ctx context.Context, name string, when time.Time) (string, error)
}

// EventStore is the persistence the scheduler appends to.
type EventStore interface {
	Append(models.Event) error
}

// Confirmation describes a scheduled event.
type Confirmation struct {
	Event models.Event
	Link  string
}

// String is the message shown after a successful Schedule.
func (c Confirmation) String() string {
	return fmt.Sprintf("Event '%s' scheduled for %s. View in calendar: %s", c.Event.Name, c.Event.FormattedTime(), c.Link)
}

// Scheduler validates proposed events, mirrors them to the calendar and stores them.
type Scheduler struct {
	logger   *slog.Logger
	calendar Calendar
	store    EventStore
	location *time.Location
	now      func() time.Time
}

// New creates a Scheduler. Times the user enters are read as wall clock in loc.
func New(logger *slog.Logger, calendar Calendar, store EventStore, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		logger:   logger,
		calendar: calendar,
		store:    store,
		location: loc,
		now:      time.Now,
	}
}

// Schedule validates name, date ("YYYY-MM-DD") and clock ("HH:MM"), creates the
// calendar entry and appends the event to the store. Nothing is retried; a failed
// calendar call leaves the store untouched.
func (s *Scheduler) Schedule(ctx context.Context, name, date, clock string) (Confirmation, error) {
	if strings.TrimSpace(name) == "" {
		return Confirmation{}, &Error{Kind: KindValidation, Msg: MsgEmptyName}
	}

	when, err := time.Parse(models.TimeLayout, date+" "+clock)
	if err != nil {
		return Confirmation{}, &Error{Kind: KindValidation, Msg: MsgInvalidTime, Err: err}
	}

	now := models.Wall(s.now().In(s.location))
	if !when.After(now) {
		s.logger.Debug("Rejected event in the past", "name", name, "when", when.Format(models.TimeLayout), "now", now.Format(models.TimeLayout))
		return Confirmation{}, &Error{Kind: KindValidation, Msg: MsgPastTime}
	}

	ev := models.NewEvent(name, when)

	link, err := s.calendar.CreateEvent(ctx, ev.Name, ev.ScheduledAt)
	if err != nil {
		s.logger.Error("Failed to create calendar event", "name", name, "error", err)
		return Confirmation{}, &Error{Kind: KindRemote, Msg: "calendar sync failed", Err: err}
	}

	if err := s.store.Append(ev); err != nil {
		s.logger.Error("Failed to persist event", "name", name, "error", err)
		return Confirmation{}, &Error{Kind: KindPersistence, Msg: "persisting event failed", Err: err}
	}

	s.logger.Info("Scheduled event", "name", ev.Name, "time", ev.FormattedTime(), "link", link)
	return Confirmation{Event: ev, Link: link}, nil
}
