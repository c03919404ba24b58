package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eduplanner/internal/models"
	"eduplanner/internal/store"
)

type fakeCalendar struct {
	calls []string
	err   error
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, name string, when time.Time) (string, error) {
	f.calls = append(f.calls, name+"@"+when.Format(models.TimeLayout))
	if f.err != nil {
		return "", f.err
	}
	return "https://calendar.example.com/e/" + strings.ReplaceAll(name, " ", "-"), nil
}

type failingStore struct{}

func (failingStore) Append(models.Event) error { return errors.New("disk full") }

var testNow = time.Date(2026, 10, 17, 9, 30, 15, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *fakeCalendar, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(logger, filepath.Join(t.TempDir(), "events.json"))
	if err != nil {
		t.Fatalf("store.Open() unexpected error: %v", err)
	}
	cal := &fakeCalendar{}
	s := New(logger, cal, st, time.UTC)
	s.now = func() time.Time { return testNow }
	return s, cal, st
}

func persistedLen(t *testing.T, st *store.Store) int {
	t.Helper()
	events, err := st.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return len(events)
}

func TestScheduleMathOlympiad(t *testing.T) {
	s, cal, st := newTestScheduler(t)

	conf, err := s.Schedule(context.Background(), "Math Olympiad", "2030-01-01", "10:00")
	if err != nil {
		t.Fatalf("Schedule() unexpected error: %v", err)
	}

	msg := conf.String()
	for _, want := range []string{"Math Olympiad", "2030-01-01 10:00", "https://calendar.example.com/e/Math-Olympiad"} {
		if !strings.Contains(msg, want) {
			t.Errorf("confirmation %q missing %q", msg, want)
		}
	}
	if got := persistedLen(t, st); got != 1 {
		t.Errorf("persisted length = %d, want 1", got)
	}
	if len(cal.calls) != 1 || cal.calls[0] != "Math Olympiad@2030-01-01 10:00" {
		t.Errorf("calendar calls = %v", cal.calls)
	}
}

func TestScheduleValidation(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		date      string
		clock     string
		wantMsg   string
		wantExact bool
	}{
		{name: "empty name", event: "", date: "2030-01-01", clock: "10:00", wantMsg: "Error: Event name cannot be empty.", wantExact: true},
		{name: "whitespace name", event: " \t\n", date: "2030-01-01", clock: "10:00", wantMsg: "Error: Event name cannot be empty.", wantExact: true},
		{name: "past date", event: "Past Event", date: "2000-01-01", clock: "10:00", wantMsg: "Error: Event date and time must be in the future.", wantExact: true},
		{name: "current minute", event: "Now", date: "2026-10-17", clock: "09:30", wantMsg: "must be in the future"},
		{name: "earlier today", event: "Morning", date: "2026-10-17", clock: "09:29", wantMsg: "must be in the future"},
		{name: "bad date", event: "Bad", date: "01/01/2030", clock: "10:00", wantMsg: "Error: invalid date/time format"},
		{name: "bad time", event: "Bad", date: "2030-01-01", clock: "10am", wantMsg: "Error: invalid date/time format"},
		{name: "seconds not accepted", event: "Bad", date: "2030-01-01", clock: "10:00:00", wantMsg: "Error: invalid date/time format"},
		{name: "impossible date", event: "Bad", date: "2030-02-30", clock: "10:00", wantMsg: "Error: invalid date/time format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cal, st := newTestScheduler(t)

			_, err := s.Schedule(context.Background(), tt.event, tt.date, tt.clock)
			if err == nil {
				t.Fatal("Schedule() expected error, got nil")
			}
			if KindOf(err) != KindValidation {
				t.Errorf("KindOf() = %v, want validation", KindOf(err))
			}

			msg := Describe(err)
			if tt.wantExact && msg != tt.wantMsg {
				t.Errorf("Describe() = %q, want %q", msg, tt.wantMsg)
			}
			if !tt.wantExact && !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("Describe() = %q, want it to contain %q", msg, tt.wantMsg)
			}

			if len(cal.calls) != 0 {
				t.Errorf("calendar called %d times on validation failure", len(cal.calls))
			}
			if got := persistedLen(t, st); got != 0 {
				t.Errorf("persisted length = %d, want 0", got)
			}
		})
	}
}

func TestScheduleNextMinuteAccepted(t *testing.T) {
	s, _, st := newTestScheduler(t)

	if _, err := s.Schedule(context.Background(), "Soon", "2026-10-17", "09:31"); err != nil {
		t.Fatalf("Schedule() unexpected error: %v", err)
	}
	if got := persistedLen(t, st); got != 1 {
		t.Errorf("persisted length = %d, want 1", got)
	}
}

func TestScheduleUsesConfiguredZone(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	// 09:30 UTC is 15:00 in India.
	s.location = time.FixedZone("IST", 19800)

	if _, err := s.Schedule(context.Background(), "Late", "2026-10-17", "14:59"); KindOf(err) != KindValidation {
		t.Errorf("14:59 IST should be in the past, got err = %v", err)
	}
	if _, err := s.Schedule(context.Background(), "Later", "2026-10-17", "15:01"); err != nil {
		t.Errorf("15:01 IST should be accepted, got err = %v", err)
	}
}

func TestScheduleRemoteFailure(t *testing.T) {
	s, cal, st := newTestScheduler(t)
	cal.err = errors.New("oauth2: token expired and refresh token is not set")

	_, err := s.Schedule(context.Background(), "JEE Advanced", "2030-05-01", "09:00")
	if KindOf(err) != KindRemote {
		t.Fatalf("KindOf() = %v, want remote (err = %v)", KindOf(err), err)
	}
	if !errors.Is(err, cal.err) {
		t.Errorf("error should wrap the calendar failure")
	}
	if msg := Describe(err); !strings.HasPrefix(msg, "Error scheduling event: ") || !strings.Contains(msg, "refresh token") {
		t.Errorf("Describe() = %q", msg)
	}
	if got := persistedLen(t, st); got != 0 {
		t.Errorf("persisted length = %d, want 0", got)
	}
}

func TestSchedulePersistenceFailure(t *testing.T) {
	cal := &fakeCalendar{}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cal, failingStore{}, time.UTC)
	s.now = func() time.Time { return testNow }

	_, err := s.Schedule(context.Background(), "NEET", "2030-05-01", "09:00")
	if KindOf(err) != KindPersistence {
		t.Fatalf("KindOf() = %v, want persistence", KindOf(err))
	}
	if msg := Describe(err); msg != "Error saving events: disk full" {
		t.Errorf("Describe() = %q", msg)
	}
}

func TestScheduleGrowsByOne(t *testing.T) {
	s, _, st := newTestScheduler(t)
	names := []string{"A", "B", "A", "C"}

	for i, n := range names {
		if _, err := s.Schedule(context.Background(), n, fmt.Sprintf("2031-01-%02d", i+1), "08:00"); err != nil {
			t.Fatalf("Schedule(%q) unexpected error: %v", n, err)
		}
		if got := persistedLen(t, st); got != i+1 {
			t.Errorf("after %d schedules persisted length = %d", i+1, got)
		}
	}
}

func TestDescribePlainError(t *testing.T) {
	if got := Describe(errors.New("boom")); got != "Error: boom" {
		t.Errorf("Describe() = %q, want %q", got, "Error: boom")
	}
}
