package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock alarm time (e.g. 05:30) independent of date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On composes the time of day onto the calendar date of ref, in ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(data []byte) error {
	parsed, err := ParseTimeOfDay(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ShiftDefinition maps keyword patterns and an alarm time of day to a named
// work-shift type. Definitions are immutable once matched; the registry is
// the sole owner of the list.
type ShiftDefinition struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	AlarmTime TimeOfDay `json:"alarm_time" yaml:"alarm_time"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
}

// Valid reports whether the definition can participate in matching.
// Malformed definitions are skipped with a warning, never a batch failure.
func (d ShiftDefinition) Valid() bool {
	if strings.TrimSpace(d.ID) == "" {
		return false
	}
	for _, kw := range d.Keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

// ShiftConfig is the full shift recognition configuration. Mutated only
// through the registry's save operation; every successful save invalidates
// the recognition cache.
type ShiftConfig struct {
	Definitions      []ShiftDefinition `json:"definitions" yaml:"definitions"`
	AutoAlarmEnabled bool              `json:"auto_alarm_enabled" yaml:"auto_alarm_enabled"`
	LookaheadDays    int               `json:"lookahead_days" yaml:"lookahead_days"`
}

// DefaultLookaheadDays bounds the event window when the config carries none.
const DefaultLookaheadDays = 14

// Lookahead returns the configured lookahead window in days, defaulted.
func (c ShiftConfig) Lookahead() int {
	if c.LookaheadDays <= 0 {
		return DefaultLookaheadDays
	}
	return c.LookaheadDays
}
