package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftwake/internal/domain"
)

type mockEventCache struct {
	stored   []domain.CalendarEvent
	storeErr error
	listErr  error
	replaces int
}

func (m *mockEventCache) ReplaceCachedEvents(ctx context.Context, events []domain.CalendarEvent) error {
	m.replaces++
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stored = events
	return nil
}

func (m *mockEventCache) ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.stored, nil
}

func sampleEvents() []domain.CalendarEvent {
	return []domain.CalendarEvent{
		{ID: "ev-1", Title: "Frühschicht", Start: time.Now().Add(24 * time.Hour)},
	}
}

func TestCachingSource_StoresFreshEvents(t *testing.T) {
	inner := NewFakeSource(sampleEvents()...)
	cache := &mockEventCache{}
	source := NewCachingSource(inner, cache)

	events, err := source.Events(context.Background(), []string{"work"}, 14)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 || cache.replaces != 1 {
		t.Errorf("events=%d replaces=%d, want fresh set cached", len(events), cache.replaces)
	}
}

func TestCachingSource_DegradesToCacheOnFetchFailure(t *testing.T) {
	inner := NewFakeSource()
	inner.SetError(errors.New("calendar unreachable"))
	cache := &mockEventCache{stored: sampleEvents()}
	source := NewCachingSource(inner, cache)

	events, err := source.Events(context.Background(), []string{"work"}, 14)
	if err != nil {
		t.Fatalf("degraded fetch must succeed, got %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Errorf("events = %+v, want the cached set", events)
	}
}

func TestCachingSource_BothFailingPropagatesFetchError(t *testing.T) {
	fetchErr := errors.New("calendar unreachable")
	inner := NewFakeSource()
	inner.SetError(fetchErr)
	cache := &mockEventCache{listErr: errors.New("storage broken")}
	source := NewCachingSource(inner, cache)

	if _, err := source.Events(context.Background(), []string{"work"}, 14); !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want the original fetch error", err)
	}
}

func TestCachingSource_CacheWriteFailureDoesNotBlockResult(t *testing.T) {
	inner := NewFakeSource(sampleEvents()...)
	cache := &mockEventCache{storeErr: errors.New("disk full")}
	source := NewCachingSource(inner, cache)

	events, err := source.Events(context.Background(), []string{"work"}, 14)
	if err != nil || len(events) != 1 {
		t.Errorf("events=%d err=%v, want fresh result despite cache failure", len(events), err)
	}
}
