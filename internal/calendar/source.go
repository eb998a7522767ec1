// Package calendar provides the event source collaborators: an ICS feed
// source, a caching decorator, and a fake for tests and local development.
package calendar

import (
	"context"
	"sync"

	"shiftwake/internal/domain"
)

// Source fetches upcoming calendar events.
type Source interface {
	// Events returns events starting within the next daysAhead days for the
	// requested calendars.
	Events(ctx context.Context, calendarIDs []string, daysAhead int) ([]domain.CalendarEvent, error)
	// AuthStatus probes whether the source can currently be read.
	AuthStatus(ctx context.Context) domain.AuthStatus
}

// FakeSource is an in-memory Source for tests and local development.
type FakeSource struct {
	mu     sync.Mutex
	events []domain.CalendarEvent
	err    error
	status domain.AuthStatus
}

func NewFakeSource(events ...domain.CalendarEvent) *FakeSource {
	return &FakeSource{events: events, status: domain.AuthStatusOK}
}

// SetEvents replaces the fake's event set.
func (f *FakeSource) SetEvents(events []domain.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// SetError makes every subsequent fetch fail with err.
func (f *FakeSource) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetAuthStatus overrides the reported authorization state.
func (f *FakeSource) SetAuthStatus(status domain.AuthStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *FakeSource) Events(ctx context.Context, calendarIDs []string, daysAhead int) ([]domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.CalendarEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *FakeSource) AuthStatus(ctx context.Context) domain.AuthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

var _ Source = (*FakeSource)(nil)
