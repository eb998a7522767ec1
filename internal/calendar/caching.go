package calendar

import (
	"context"
	"log"

	"shiftwake/internal/domain"
)

// EventCacheStore persists the last successfully fetched event set.
type EventCacheStore interface {
	ReplaceCachedEvents(ctx context.Context, events []domain.CalendarEvent) error
	ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error)
}

// CachingSource wraps a Source and keeps the last good event set in storage.
// A failed fetch degrades to the cached set instead of an empty one, so a
// transient calendar outage never wipes the alarm set.
type CachingSource struct {
	inner Source
	cache EventCacheStore
}

func NewCachingSource(inner Source, cache EventCacheStore) *CachingSource {
	return &CachingSource{inner: inner, cache: cache}
}

func (s *CachingSource) Events(ctx context.Context, calendarIDs []string, daysAhead int) ([]domain.CalendarEvent, error) {
	events, err := s.inner.Events(ctx, calendarIDs, daysAhead)
	if err != nil {
		cached, cacheErr := s.cache.ListCachedEvents(ctx)
		if cacheErr != nil {
			log.Printf("calendar: fetch failed and cache unreadable: fetch=%v cache=%v", err, cacheErr)
			return nil, err
		}
		log.Printf("calendar: fetch failed, degrading to %d cached events: %v", len(cached), err)
		return cached, nil
	}

	if err := s.cache.ReplaceCachedEvents(ctx, events); err != nil {
		// Cache write failures must not block the fresh result.
		log.Printf("calendar: caching %d events failed: %v", len(events), err)
	}
	return events, nil
}

func (s *CachingSource) AuthStatus(ctx context.Context) domain.AuthStatus {
	return s.inner.AuthStatus(ctx)
}

var _ Source = (*CachingSource)(nil)
