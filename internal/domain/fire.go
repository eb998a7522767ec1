package domain

import (
	"time"

	"github.com/google/uuid"
)

// FirePayload is the opaque payload carried by a scheduled device timer and
// handed back when it elapses.
type FirePayload struct {
	ShiftID       string
	ShiftName     string
	FormattedTime string
}

// FireEvent is emitted by the device scheduler when a wake timer elapses.
type FireEvent struct {
	ExecutionID uuid.UUID
	AlarmID     int32

	ShiftID       string
	ShiftName     string
	FormattedTime string

	ScheduledAt time.Time // intended trigger time
	FiredAt     time.Time // actual emission time
}

// FireOutcome is the terminal result of handling one fire event.
type FireOutcome string

const (
	// FireOutcomePending marks a fire row whose handling has not finished.
	FireOutcomePending FireOutcome = "pending"
	// FireOutcomeExecuted means the downstream trigger was delivered.
	FireOutcomeExecuted FireOutcome = "executed"
	// FireOutcomeSkipped means a matching skip marker suppressed the alarm.
	FireOutcomeSkipped FireOutcome = "skipped"
	// FireOutcomeFailed means the downstream trigger could not be delivered.
	// The wake event itself still happened; only the side effect failed.
	FireOutcomeFailed FireOutcome = "failed"
)

// Terminal reports whether the outcome is final and must not regress.
func (o FireOutcome) Terminal() bool {
	return o == FireOutcomeExecuted || o == FireOutcomeSkipped || o == FireOutcomeFailed
}

// FireRecord is the audit row for one wake event.
type FireRecord struct {
	ID      uuid.UUID
	AlarmID int32

	ShiftID   string
	ShiftName string

	ScheduledAt time.Time
	FiredAt     time.Time
	Outcome     FireOutcome

	CreatedAt time.Time
}

// TriggerConfig describes the downstream trigger collaborator endpoint
// (notification/full-screen UI bridge, lighting rule engine).
type TriggerConfig struct {
	WebhookURL string
	Secret     string // HMAC secret
	Timeout    time.Duration
}

// AnalyticsConfig controls the optional fire-outcome analytics sink.
type AnalyticsConfig struct {
	Enabled   bool
	Window    time.Duration // counter bucket width
	Retention time.Duration // key TTL, must be >= Window
}
