// Package recognize matches calendar events against shift definitions and
// computes the alarm time for each match.
//
// Matching policy: for each event, enabled definitions are tried in registry
// order and the first match wins; later definitions are not considered for
// that event. A definition matches when any keyword and the event title
// contain each other case-insensitively in either direction (symmetric
// containment, intentional for short abbreviations like "Früh").
package recognize

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"shiftwake/internal/domain"
)

// Engine is the shift recognition engine. Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	cacheKey string
	cached   []domain.ShiftMatch
}

func New() *Engine {
	return &Engine{}
}

// Recognize returns at most one match per event. Unmatched events are
// omitted, never an error. Malformed definitions are skipped with a warning.
//
// Results are cached under a key derived from the definition list and the
// event set; InvalidateCache must be called synchronously after every
// successful registry save.
func (e *Engine) Recognize(events []domain.CalendarEvent, config domain.ShiftConfig) []domain.ShiftMatch {
	key := cacheKey(events, config)

	e.mu.Lock()
	if e.cacheKey == key && e.cached != nil {
		matches := e.cached
		e.mu.Unlock()
		return matches
	}
	e.mu.Unlock()

	matches := recognize(events, config)

	e.mu.Lock()
	e.cacheKey = key
	e.cached = matches
	e.mu.Unlock()

	return matches
}

// InvalidateCache drops any cached recognition result. Called by the
// registry strictly after a config write succeeds.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	e.cacheKey = ""
	e.cached = nil
	e.mu.Unlock()
}

func recognize(events []domain.CalendarEvent, config domain.ShiftConfig) []domain.ShiftMatch {
	matches := make([]domain.ShiftMatch, 0, len(events))

	for _, event := range events {
		for _, def := range config.Definitions {
			if !def.Enabled {
				continue
			}
			if !def.Valid() {
				log.Printf("recognize: skipping malformed definition id=%q name=%q", def.ID, def.Name)
				continue
			}
			if !titleMatches(event.Title, def.Keywords) {
				continue
			}
			matches = append(matches, domain.ShiftMatch{
				Definition: def,
				Event:      event,
				AlarmAt:    ComputeAlarmTime(event.Start, def.AlarmTime),
			})
			break // first enabled definition wins
		}
	}

	return matches
}

// titleMatches applies symmetric case-insensitive substring containment
// between the event title and each keyword.
func titleMatches(title string, keywords []string) bool {
	loweredTitle := strings.ToLower(title)
	for _, kw := range keywords {
		loweredKw := strings.ToLower(strings.TrimSpace(kw))
		if loweredKw == "" {
			continue
		}
		if strings.Contains(loweredTitle, loweredKw) || strings.Contains(loweredKw, loweredTitle) {
			return true
		}
	}
	return false
}

// ComputeAlarmTime composes the alarm time of day onto the event's start
// date. If the composed time is strictly after the event start, the alarm
// belongs to the previous evening (night-shift pre-alert) and one calendar
// day is subtracted. The result is always <= eventStart.
func ComputeAlarmTime(eventStart time.Time, alarmTime domain.TimeOfDay) time.Time {
	composed := alarmTime.On(eventStart)
	if composed.After(eventStart) {
		composed = composed.AddDate(0, 0, -1)
	}
	return composed
}

// cacheKey hashes the definition list (ids, keywords, alarm times, enabled
// flags) together with a fingerprint of the event set.
func cacheKey(events []domain.CalendarEvent, config domain.ShiftConfig) string {
	h := sha256.New()
	for _, def := range config.Definitions {
		h.Write([]byte(def.ID))
		h.Write([]byte{0})
		h.Write([]byte(def.AlarmTime.String()))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatBool(def.Enabled)))
		for _, kw := range def.Keywords {
			h.Write([]byte{0})
			h.Write([]byte(kw))
		}
		h.Write([]byte{'\n'})
	}
	h.Write([]byte{'\n'})
	for _, ev := range events {
		h.Write([]byte(ev.ID))
		h.Write([]byte{0})
		h.Write([]byte(ev.Title))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(ev.Start.Unix(), 10)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
