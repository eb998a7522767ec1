package metrics

import "time"

// NoopSink is a Sink that records nothing. Used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) RecomputeStarted()                                                      {}
func (s *NoopSink) RecomputeCompleted(duration time.Duration, created int, err error)      {}
func (s *NoopSink) RecomputeRejected()                                                     {}
func (s *NoopSink) AlarmScheduled()                                                        {}
func (s *NoopSink) AlarmCancelled()                                                        {}
func (s *NoopSink) SkipArmed()                                                             {}
func (s *NoopSink) SkipConsumed()                                                          {}
func (s *NoopSink) TriggerAttemptCompleted(attempt int, statusClass string, d time.Duration) {}
func (s *NoopSink) FireOutcome(outcome string)                                             {}
func (s *NoopSink) RetryAttempt(retryable bool)                                            {}
func (s *NoopSink) FiresInFlightIncr()                                                     {}
func (s *NoopSink) FiresInFlightDecr()                                                     {}
func (s *NoopSink) BufferSizeUpdate(size int)                                              {}
func (s *NoopSink) BufferCapacitySet(capacity int)                                         {}
func (s *NoopSink) EmitError()                                                             {}
func (s *NoopSink) RecoveryAttempt(attempt int)                                            {}
func (s *NoopSink) RecoveryCompleted(outcome string, restored int)                         {}

var _ Sink = (*NoopSink)(nil)
