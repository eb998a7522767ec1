package recognize

import (
	"testing"
	"time"

	"shiftwake/internal/domain"
)

func tod(h, m int) domain.TimeOfDay {
	return domain.TimeOfDay{Hour: h, Minute: m}
}

func def(id string, alarm domain.TimeOfDay, keywords ...string) domain.ShiftDefinition {
	return domain.ShiftDefinition{
		ID:        id,
		Name:      id,
		Keywords:  keywords,
		AlarmTime: alarm,
		Enabled:   true,
	}
}

func event(id, title string, start time.Time) domain.CalendarEvent {
	return domain.CalendarEvent{
		ID:         id,
		Title:      title,
		Start:      start,
		End:        start.Add(8 * time.Hour),
		CalendarID: "primary",
	}
}

func TestComputeAlarmTime(t *testing.T) {
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		alarm domain.TimeOfDay
		want  time.Time
	}{
		{
			name:  "alarm before start, same day",
			start: day.Add(6 * time.Hour), // 06:00
			alarm: tod(5, 30),
			want:  day.Add(5*time.Hour + 30*time.Minute),
		},
		{
			name:  "alarm after start rolls back one day",
			start: day.Add(22 * time.Hour), // 22:00
			alarm: tod(23, 0),
			want:  day.AddDate(0, 0, -1).Add(23 * time.Hour),
		},
		{
			name:  "alarm equal to start does not roll back",
			start: day.Add(22 * time.Hour),
			alarm: tod(22, 0),
			want:  day.Add(22 * time.Hour),
		},
		{
			name:  "midnight start with morning alarm rolls back",
			start: day, // 00:00
			alarm: tod(5, 0),
			want:  day.AddDate(0, 0, -1).Add(5 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAlarmTime(tt.start, tt.alarm)
			if !got.Equal(tt.want) {
				t.Errorf("ComputeAlarmTime() = %v, want %v", got, tt.want)
			}
			if got.After(tt.start) {
				t.Errorf("ComputeAlarmTime() = %v is after event start %v", got, tt.start)
			}
		})
	}
}

func TestRecognize_KeywordContainment(t *testing.T) {
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	cfg := domain.ShiftConfig{
		AutoAlarmEnabled: true,
		Definitions:      []domain.ShiftDefinition{def("frueh", tod(5, 30), "früh")},
	}

	matches := New().Recognize([]domain.CalendarEvent{event("ev-1", "Frühschicht", start)}, cfg)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Definition.ID != "frueh" {
		t.Errorf("matched definition = %s, want frueh", matches[0].Definition.ID)
	}
	want := time.Date(2026, 3, 9, 5, 30, 0, 0, time.UTC)
	if !matches[0].AlarmAt.Equal(want) {
		t.Errorf("AlarmAt = %v, want %v", matches[0].AlarmAt, want)
	}
}

func TestRecognize_SymmetricContainment(t *testing.T) {
	// Short event title contained in a longer keyword must also match.
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	cfg := domain.ShiftConfig{
		Definitions: []domain.ShiftDefinition{def("frueh", tod(5, 30), "frühschicht")},
	}

	matches := New().Recognize([]domain.CalendarEvent{event("ev-1", "Früh", start)}, cfg)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match via reverse containment, got %d", len(matches))
	}
}

func TestRecognize_FirstEnabledDefinitionWins(t *testing.T) {
	start := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	ev := event("ev-1", "Schicht Spät", start)

	first := def("a", tod(12, 0), "schicht")
	second := def("b", tod(13, 0), "spät")

	matches := New().Recognize([]domain.CalendarEvent{ev}, domain.ShiftConfig{
		Definitions: []domain.ShiftDefinition{first, second},
	})
	if len(matches) != 1 {
		t.Fatalf("expected exactly 1 match per event, got %d", len(matches))
	}
	if matches[0].Definition.ID != "a" {
		t.Errorf("matched %s, want first definition in registry order", matches[0].Definition.ID)
	}

	// Reversing the order flips the winner: priority is list order only.
	matches = New().Recognize([]domain.CalendarEvent{ev}, domain.ShiftConfig{
		Definitions: []domain.ShiftDefinition{second, first},
	})
	if len(matches) != 1 || matches[0].Definition.ID != "b" {
		t.Fatalf("expected reversed order to match definition b, got %+v", matches)
	}
}

func TestRecognize_DisabledDefinitionSkipped(t *testing.T) {
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	disabled := def("a", tod(5, 0), "früh")
	disabled.Enabled = false
	fallback := def("b", tod(5, 30), "schicht")

	matches := New().Recognize(
		[]domain.CalendarEvent{event("ev-1", "Frühschicht", start)},
		domain.ShiftConfig{Definitions: []domain.ShiftDefinition{disabled, fallback}},
	)
	if len(matches) != 1 || matches[0].Definition.ID != "b" {
		t.Fatalf("expected disabled definition to be skipped, got %+v", matches)
	}
}

func TestRecognize_MalformedDefinitionSkipped(t *testing.T) {
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	malformed := domain.ShiftDefinition{ID: "", Keywords: []string{"früh"}, Enabled: true}
	empty := domain.ShiftDefinition{ID: "x", Keywords: []string{"  "}, Enabled: true}
	valid := def("ok", tod(5, 30), "früh")

	matches := New().Recognize(
		[]domain.CalendarEvent{event("ev-1", "Frühschicht", start)},
		domain.ShiftConfig{Definitions: []domain.ShiftDefinition{malformed, empty, valid}},
	)
	if len(matches) != 1 || matches[0].Definition.ID != "ok" {
		t.Fatalf("expected malformed definitions to be skipped, got %+v", matches)
	}
}

func TestRecognize_UnmatchedEventsOmitted(t *testing.T) {
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	matches := New().Recognize(
		[]domain.CalendarEvent{event("ev-1", "Zahnarzt", start)},
		domain.ShiftConfig{Definitions: []domain.ShiftDefinition{def("a", tod(5, 30), "früh")}},
	)
	if len(matches) != 0 {
		t.Fatalf("expected no matches for unrelated event, got %d", len(matches))
	}
}

func TestEngine_CacheInvalidation(t *testing.T) {
	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	events := []domain.CalendarEvent{event("ev-1", "Frühschicht", start)}
	cfg := domain.ShiftConfig{Definitions: []domain.ShiftDefinition{def("a", tod(5, 30), "früh")}}

	e := New()
	first := e.Recognize(events, cfg)
	second := e.Recognize(events, cfg)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected stable matches, got %d then %d", len(first), len(second))
	}

	// Same definitions with the keyword removed after invalidation must
	// produce a fresh (empty) result, not the cached one.
	e.InvalidateCache()
	cfg.Definitions[0].Keywords = []string{"spät"}
	third := e.Recognize(events, cfg)
	if len(third) != 0 {
		t.Fatalf("expected recompute after invalidation, got %d matches", len(third))
	}
}

func TestEngine_CacheKeyedByEvents(t *testing.T) {
	cfg := domain.ShiftConfig{Definitions: []domain.ShiftDefinition{def("a", tod(5, 30), "früh")}}
	day := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)

	e := New()
	one := e.Recognize([]domain.CalendarEvent{event("ev-1", "Frühschicht", day)}, cfg)
	if len(one) != 1 {
		t.Fatalf("expected 1 match, got %d", len(one))
	}

	// A different event set must not be served from the cache.
	two := e.Recognize([]domain.CalendarEvent{
		event("ev-1", "Frühschicht", day),
		event("ev-2", "Frühschicht", day.AddDate(0, 0, 1)),
	}, cfg)
	if len(two) != 2 {
		t.Fatalf("expected 2 matches for new event set, got %d", len(two))
	}
}
