package scheduler

import (
	"context"
	"sync"
	"time"
)

// LazyCalendar defers building the real backend until the first event is created, so
// requests that fail validation never load credentials or touch the network.
type LazyCalendar struct {
	build func(ctx context.Context) (Calendar, error)

	mu  sync.Mutex
	cal Calendar
}

// NewLazyCalendar returns a Calendar that calls build on first use. A failed build is
// retried on the next call.
func NewLazyCalendar(build func(ctx context.Context) (Calendar, error)) *LazyCalendar {
	return &LazyCalendar{build: build}
}

// CreateEvent builds the backend if needed and forwards the call to it.
func (l *LazyCalendar) CreateEvent(ctx context.Context, name string, when time.Time) (string, error) {
	cal, err := l.calendar(ctx)
	if err != nil {
		return "", err
	}
	return cal.CreateEvent(ctx, name, when)
}

func (l *LazyCalendar) calendar(ctx context.Context) (Calendar, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cal == nil {
		cal, err := l.build(ctx)
		if err != nil {
			return nil, err
		}
		l.cal = cal
	}
	return l.cal, nil
}
