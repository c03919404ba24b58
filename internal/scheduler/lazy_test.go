package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eduplanner/internal/store"
)

func TestLazyCalendarNotBuiltOnValidationFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(logger, filepath.Join(t.TempDir(), "events.json"))
	if err != nil {
		t.Fatalf("store.Open() unexpected error: %v", err)
	}

	builds := 0
	cal := NewLazyCalendar(func(ctx context.Context) (Calendar, error) {
		builds++
		return nil, errors.New("credentials.json not found")
	})
	s := New(logger, cal, st, time.UTC)
	s.now = func() time.Time { return testNow }

	for _, in := range [][3]string{
		{"", "2030-01-01", "10:00"},
		{"Past Event", "2000-01-01", "10:00"},
		{"Bad", "2030-13-01", "10:00"},
	} {
		_, err := s.Schedule(context.Background(), in[0], in[1], in[2])
		if KindOf(err) != KindValidation {
			t.Errorf("Schedule(%q, %q, %q) kind = %v, want validation (err = %v)", in[0], in[1], in[2], KindOf(err), err)
		}
	}
	if builds != 0 {
		t.Errorf("calendar built %d times, want 0", builds)
	}
}

func TestLazyCalendarBuildFailureIsRemote(t *testing.T) {
	s, _, st := newTestScheduler(t)
	builds := 0
	s.calendar = NewLazyCalendar(func(ctx context.Context) (Calendar, error) {
		builds++
		return nil, errors.New("credentials.json not found")
	})

	_, err := s.Schedule(context.Background(), "NEET", "2030-05-01", "09:00")
	if KindOf(err) != KindRemote {
		t.Fatalf("KindOf() = %v, want remote (err = %v)", KindOf(err), err)
	}
	if msg := Describe(err); !strings.HasPrefix(msg, "Error scheduling event: ") || !strings.Contains(msg, "credentials.json") {
		t.Errorf("Describe() = %q", msg)
	}
	if got := persistedLen(t, st); got != 0 {
		t.Errorf("persisted length = %d, want 0", got)
	}

	if _, err := s.Schedule(context.Background(), "NEET", "2030-05-01", "09:00"); KindOf(err) != KindRemote {
		t.Errorf("second Schedule() kind = %v, want remote", KindOf(err))
	}
	if builds != 2 {
		t.Errorf("builds = %d, want a retry after failure", builds)
	}
}

func TestLazyCalendarBuildsOnce(t *testing.T) {
	s, fake, _ := newTestScheduler(t)
	builds := 0
	s.calendar = NewLazyCalendar(func(ctx context.Context) (Calendar, error) {
		builds++
		return fake, nil
	})

	for _, name := range []string{"JEE Main", "JEE Advanced"} {
		if _, err := s.Schedule(context.Background(), name, "2030-05-01", "09:00"); err != nil {
			t.Fatalf("Schedule(%q) unexpected error: %v", name, err)
		}
	}
	if builds != 1 || len(fake.calls) != 2 {
		t.Errorf("builds = %d, calendar calls = %d; want 1 and 2", builds, len(fake.calls))
	}
}
