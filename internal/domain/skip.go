package domain

import "time"

// SkipMarker is the single-slot one-shot suppression record. Setting a new
// skip replaces any previous one; consuming it clears the slot.
type SkipMarker struct {
	AlarmID int32
	SetAt   time.Time
}

// SkipDecision is the outcome of the fire-time skip check.
type SkipDecision string

const (
	AlarmSkipped  SkipDecision = "ALARM_SKIPPED"
	AlarmExecuted SkipDecision = "ALARM_EXECUTED"
)

// SkipResult describes the alarm a new skip marker targets.
type SkipResult struct {
	AlarmID       int32  `json:"alarm_id"`
	ShiftName     string `json:"shift_name"`
	FormattedTime string `json:"formatted_time"`
}
