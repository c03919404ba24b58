// Package store persists scheduled events to a flat JSON file.
//
// The file holds an ordered array of {"event_name", "event_time"} records and is
// rewritten in full on every mutation. Insertion order is display order.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"eduplanner/internal/models"
)

// EmptyListing is what List returns when no events are stored.
const EmptyListing = "No events scheduled."

// Store keeps the in-memory event list and its backing file in step.
type Store struct {
	mu     sync.Mutex
	path   string
	events []models.Event
	logger *slog.Logger
}

// Open loads the store at path. A missing file is a first run and yields an empty store.
// A file that cannot be parsed is moved aside to <path>.corrupt and the store starts empty.
func Open(logger *slog.Logger, path string) (*Store, error) {
	s := &Store{path: path, logger: logger}

	events, err := s.Load()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		backup := path + ".corrupt"
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt events file aside: %w", renameErr)
		}
		logger.Warn("Events file was corrupt, starting with an empty list.", "file", path, "backup", backup, "error", err)
		events = []models.Event{}
	}

	s.events = events
	logger.Debug("Loaded events.", "file", path, "count", len(events))
	return s, nil
}

// ErrCorrupt marks an events file that exists but cannot be decoded.
var ErrCorrupt = errors.New("events file is corrupt")

// Load reads the persisted events. A missing file returns an empty slice.
func (s *Store) Load() ([]models.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Event{}, nil
		}
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// Save overwrites the file with events and, once the write has landed, makes them the
// in-memory list.
func (s *Store) Save(events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(events)
}

func (s *Store) save(events []models.Event) error {
	snapshot := make([]models.Event, len(events))
	copy(snapshot, events)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := writeFile(s.path, data); err != nil {
		return err
	}
	s.events = snapshot
	return nil
}

// writeFile replaces path with data via a temp file in the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp events file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write events file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write events file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set events file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace events file: %w", err)
	}
	return nil
}

// Events returns a copy of the current list.
func (s *Store) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

// Append persists the current list plus ev.
func (s *Store) Append(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Event, 0, len(s.events)+1)
	next = append(next, s.events...)
	next = append(next, ev)
	if err := s.save(next); err != nil {
		return err
	}
	s.logger.Info("Stored event.", "name", ev.Name, "time", ev.FormattedTime(), "count", len(next))
	return nil
}

// List renders one "<name> at <time>" line per event, or EmptyListing.
func (s *Store) List() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Render(s.events)
}

// Render formats events the way List does.
func Render(events []models.Event) string {
	if len(events) == 0 {
		return EmptyListing
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = ev.String()
	}
	return strings.Join(lines, "\n")
}

// Delete removes every event named exactly name and persists the result. Deleting a
// name that is not stored still succeeds.
func (s *Store) Delete(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Name != name {
			kept = append(kept, ev)
		}
	}
	removed := len(s.events) - len(kept)
	if err := s.save(kept); err != nil {
		return "", err
	}

	s.logger.Info("Deleted events.", "name", name, "removed", removed)
	return fmt.Sprintf("Event '%s' deleted.", name), nil
}
