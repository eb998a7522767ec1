package calendar

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"shiftwake/internal/domain"
)

// maxOccurrencesPerEvent caps RRULE expansion so a malformed feed cannot
// produce an unbounded event set.
const maxOccurrencesPerEvent = 500

// ICSSource reads calendars from ICS feed URLs, one feed per calendar id.
type ICSSource struct {
	urls   map[string]string
	client *http.Client
	clock  func() time.Time
}

func NewICSSource(urls map[string]string, client *http.Client) *ICSSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ICSSource{urls: urls, client: client, clock: time.Now}
}

// WithClock overrides the time source. For tests.
func (s *ICSSource) WithClock(clock func() time.Time) *ICSSource {
	s.clock = clock
	return s
}

// Events fetches and expands every requested calendar. A failing feed fails
// the whole fetch so callers can fall back to cached events instead of
// silently recomputing from a partial set.
func (s *ICSSource) Events(ctx context.Context, calendarIDs []string, daysAhead int) ([]domain.CalendarEvent, error) {
	now := s.clock()
	windowEnd := now.AddDate(0, 0, daysAhead)

	var result []domain.CalendarEvent
	for _, id := range calendarIDs {
		url, ok := s.urls[id]
		if !ok {
			log.Printf("calendar: no feed configured for calendar %q, skipping", id)
			continue
		}
		events, err := s.fetchOne(ctx, id, url, now, windowEnd)
		if err != nil {
			return nil, err
		}
		result = append(result, events...)
	}
	return result, nil
}

// AuthStatus probes the first configured feed.
func (s *ICSSource) AuthStatus(ctx context.Context) domain.AuthStatus {
	for _, url := range s.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return domain.AuthStatusUnknown
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return domain.AuthStatusUnknown
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return domain.AuthStatusUnauthorized
		}
		return domain.AuthStatusOK
	}
	return domain.AuthStatusUnknown
}

func (s *ICSSource) fetchOne(ctx context.Context, calendarID, url string, windowStart, windowEnd time.Time) ([]domain.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.CalendarFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.CalendarFetchError{
			Unauthorized: true,
			Err:          fmt.Errorf("feed %s returned status %d", calendarID, resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.CalendarFetchError{Err: fmt.Errorf("feed %s returned status %d", calendarID, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &domain.CalendarFetchError{Err: fmt.Errorf("read feed %s: %w", calendarID, err)}
	}

	return parseFeed(calendarID, body, windowStart, windowEnd)
}

// parseFeed parses an ICS payload and expands recurring events into concrete
// instances within [windowStart, windowEnd]. Malformed VEVENTs are skipped.
func parseFeed(calendarID string, body []byte, windowStart, windowEnd time.Time) ([]domain.CalendarEvent, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", calendarID, err)
	}

	var result []domain.CalendarEvent
	for _, ve := range cal.Events() {
		events, err := expandVEvent(calendarID, ve, windowStart, windowEnd)
		if err != nil {
			log.Printf("calendar: skipping event in feed %s: %v", calendarID, err)
			continue
		}
		result = append(result, events...)
	}
	return result, nil
}

func expandVEvent(calendarID string, ve *ical.VEvent, windowStart, windowEnd time.Time) ([]domain.CalendarEvent, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return nil, fmt.Errorf("missing UID")
	}
	uid := uidProp.Value

	title := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		title = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("event %s: no usable DTSTART: %w", uid, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	duration := end.Sub(start)

	rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil || rruleProp.Value == "" {
		// Single event: include when it starts inside the window.
		if start.Before(windowStart) || start.After(windowEnd) {
			return nil, nil
		}
		return []domain.CalendarEvent{{
			ID:         uid,
			Title:      title,
			Start:      start,
			End:        end,
			CalendarID: calendarID,
		}}, nil
	}

	rule, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad RRULE %q: %w", uid, rruleProp.Value, err)
	}
	rule.DTStart(start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range exDates(ve, start.Location()) {
		set.ExDate(ex)
	}

	occurrences := set.Between(windowStart.In(start.Location()), windowEnd.In(start.Location()), true)
	if len(occurrences) > maxOccurrencesPerEvent {
		log.Printf("calendar: event %s expansion capped at %d occurrences", uid, maxOccurrencesPerEvent)
		occurrences = occurrences[:maxOccurrencesPerEvent]
	}

	result := make([]domain.CalendarEvent, 0, len(occurrences))
	for _, occStart := range occurrences {
		result = append(result, domain.CalendarEvent{
			// Per-instance id so each occurrence gets its own alarm.
			ID:         fmt.Sprintf("%s/%s", uid, occStart.UTC().Format("20060102T150405Z")),
			Title:      title,
			Start:      occStart,
			End:        occStart.Add(duration),
			CalendarID: calendarID,
		})
	}
	return result, nil
}

// exDates collects EXDATE values, best-effort. Unparseable entries are
// dropped.
func exDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var result []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				result = append(result, t.In(loc))
			}
		}
	}
	return result
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

var _ Source = (*ICSSource)(nil)
