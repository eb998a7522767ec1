// Package devicesched adapts the platform's exact-wake primitive.
//
// TimerScheduler is the in-process implementation: armed timers survive the
// callers that created them but, like the device primitive it models, do not
// survive a process restart. Closing that gap is the recovery coordinator's
// entire reason to exist.
package devicesched

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"shiftwake/internal/domain"
)

// FireSink receives the fire event when an armed timer elapses.
type FireSink interface {
	Emit(ctx context.Context, event domain.FireEvent) error
}

// emitTimeout bounds how long a fired timer waits on a congested sink.
const emitTimeout = 10 * time.Second

// TimerScheduler schedules exact wakes keyed by alarm id.
// Scheduling the same id again replaces the existing timer.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[int32]*armedTimer
	sink   FireSink
	clock  func() time.Time
}

type armedTimer struct {
	timer     *time.Timer
	triggerAt time.Time
}

func NewTimerScheduler(sink FireSink) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[int32]*armedTimer),
		sink:   sink,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (s *TimerScheduler) WithClock(clock func() time.Time) *TimerScheduler {
	s.clock = clock
	return s
}

// Schedule arms an exact wake at triggerAt. Synchronous-or-fail: a past
// trigger time is rejected immediately and attributable to this id.
func (s *TimerScheduler) Schedule(id int32, triggerAt time.Time, payload domain.FirePayload) error {
	now := s.clock()
	delay := triggerAt.Sub(now)
	if delay < 0 {
		return &domain.SchedulingError{AlarmID: id, Err: fmt.Errorf("trigger time %s already passed", triggerAt.Format(time.RFC3339))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[id]; ok {
		existing.timer.Stop()
	}

	s.timers[id] = &armedTimer{
		triggerAt: triggerAt,
		timer: time.AfterFunc(delay, func() {
			s.fire(id, triggerAt, payload)
		}),
	}
	return nil
}

// Cancel disarms the timer for id, if any.
func (s *TimerScheduler) Cancel(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if armed, ok := s.timers[id]; ok {
		armed.timer.Stop()
		delete(s.timers, id)
	}
}

// CancelAll disarms every timer. Used during shutdown.
func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, id)
	}
}

// Armed returns the number of currently armed timers.
func (s *TimerScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) fire(id int32, triggerAt time.Time, payload domain.FirePayload) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()

	event := domain.FireEvent{
		ExecutionID:   uuid.New(),
		AlarmID:       id,
		ShiftID:       payload.ShiftID,
		ShiftName:     payload.ShiftName,
		FormattedTime: payload.FormattedTime,
		ScheduledAt:   triggerAt,
		FiredAt:       s.clock(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := s.sink.Emit(ctx, event); err != nil {
		log.Printf("devicesched: failed to emit fire event alarm=%d: %v", id, err)
	}
}
