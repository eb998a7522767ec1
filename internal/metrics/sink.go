package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Alarm lifecycle metrics
	RecomputeStarted()
	RecomputeCompleted(duration time.Duration, created int, err error)
	RecomputeRejected()
	AlarmScheduled()
	AlarmCancelled()

	// Skip metrics
	SkipArmed()
	SkipConsumed()

	// Firing metrics
	TriggerAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	FireOutcome(outcome string)
	RetryAttempt(retryable bool)
	FiresInFlightIncr()
	FiresInFlightDecr()

	// Fire bus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Recovery metrics
	RecoveryAttempt(attempt int)
	RecoveryCompleted(outcome string, restored int)
}
