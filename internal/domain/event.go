package domain

import "time"

// CalendarEvent is a read-only event from the calendar collaborator.
// The ID is collaborator-assigned and opaque.
type CalendarEvent struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	CalendarID string
}

// ShiftMatch pairs one calendar event with the single shift definition it
// satisfies, plus the computed alarm time. Transient: produced by the
// recognition engine, consumed immediately by the lifecycle coordinator.
type ShiftMatch struct {
	Definition ShiftDefinition
	Event      CalendarEvent
	AlarmAt    time.Time
}
