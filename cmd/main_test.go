package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args in an empty working directory and returns what it printed.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	testChdir(t, dir)
	t.Setenv("EVENTS_FILE", filepath.Join(dir, "events.json"))
	t.Setenv("PRIMARY_TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"eduplanner"}, args...))
	return out.String(), err
}

func TestScheduleValidatesBeforeCalDAV(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	t.Setenv("CALENDAR_BACKEND", "caldav")
	t.Setenv("CALDAV_ENDPOINT", srv.URL+"/")
	t.Setenv("ICLOUD_USERNAME", "student")
	t.Setenv("ICLOUD_APP_SPECIFIC_PASSWORD", "app-pass")
	t.Setenv("ICLOUD_CALENDAR_NAME", "Home")

	out, err := runApp(t, "schedule", "--name", "Past Event", "--date", "2000-01-01", "--time", "10:00")
	if err == nil {
		t.Error("schedule should exit non-zero on a rejected event")
	}
	if !strings.Contains(out, "Error: Event date and time must be in the future.") {
		t.Errorf("output = %q, want the past-time message", out)
	}
	if !strings.Contains(out, "No events scheduled.") {
		t.Errorf("output = %q, want the event listing", out)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("CalDAV server received %d requests, want 0", n)
	}
}

func TestScheduleValidatesWithoutGoogleCredentials(t *testing.T) {
	t.Setenv("CALENDAR_BACKEND", "google")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")

	out, err := runApp(t, "schedule", "--name", "", "--date", "2030-01-01", "--time", "10:00")
	if err == nil {
		t.Error("schedule should exit non-zero on a rejected event")
	}
	if !strings.Contains(out, "Error: Event name cannot be empty.") {
		t.Errorf("output = %q, want the empty-name message", out)
	}
}

func TestScheduleReportsMissingCredentials(t *testing.T) {
	t.Setenv("CALENDAR_BACKEND", "google")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")

	out, err := runApp(t, "schedule", "--name", "NEET", "--date", "2030-05-01", "--time", "09:00")
	if err == nil {
		t.Error("schedule should exit non-zero when the calendar cannot be reached")
	}
	if !strings.Contains(out, "Error scheduling event: ") || !strings.Contains(out, "credentials.json not found") {
		t.Errorf("output = %q, want a calendar error naming the missing credentials", out)
	}
}

// testChdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
