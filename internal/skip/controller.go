// Package skip implements one-shot suppression of a single upcoming alarm.
//
// The marker is single-slot: arming a new skip replaces any previous one,
// and firing the targeted alarm consumes it exactly once. If the fire-time
// marker read fails the check fails open and the alarm executes — never
// missing a wake event outranks honoring a skip request.
package skip

import (
	"context"
	"errors"
	"log"
	"time"

	"shiftwake/internal/domain"
)

// ErrNoUpcomingAlarm is returned when there is no future alarm to skip.
var ErrNoUpcomingAlarm = errors.New("no upcoming alarm to skip")

// AlarmLister reads the alarms that can be targeted by a skip.
type AlarmLister interface {
	ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error)
}

// MarkerStore is the single-slot skip marker persistence.
type MarkerStore interface {
	GetSkipMarker(ctx context.Context) (domain.SkipMarker, bool, error)
	SetSkipMarker(ctx context.Context, marker domain.SkipMarker) error
	ClearSkipMarker(ctx context.Context) error
}

// MetricsSink records skip activity. Non-blocking, fire-and-forget.
type MetricsSink interface {
	SkipArmed()
	SkipConsumed()
}

type Controller struct {
	alarms  AlarmLister
	markers MarkerStore
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(alarms AlarmLister, markers MarkerStore) *Controller {
	return &Controller{
		alarms:  alarms,
		markers: markers,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the controller.
func (c *Controller) WithMetrics(sink MetricsSink) *Controller {
	c.metrics = sink
	return c
}

// WithClock overrides the time source. For tests.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// SkipNext arms a skip for the alarm with the smallest future trigger time.
func (c *Controller) SkipNext(ctx context.Context) (domain.SkipResult, error) {
	now := c.clock()

	alarms, err := c.alarms.ListFutureAlarms(ctx, now)
	if err != nil {
		return domain.SkipResult{}, &domain.StorageError{Op: "list future alarms", Err: err}
	}
	if len(alarms) == 0 {
		return domain.SkipResult{}, ErrNoUpcomingAlarm
	}

	next := alarms[0]
	for _, a := range alarms[1:] {
		if a.TriggerAt.Before(next.TriggerAt) {
			next = a
		}
	}

	marker := domain.SkipMarker{AlarmID: next.ID, SetAt: now}
	if err := c.markers.SetSkipMarker(ctx, marker); err != nil {
		return domain.SkipResult{}, &domain.StorageError{Op: "set skip marker", Err: err}
	}

	if c.metrics != nil {
		c.metrics.SkipArmed()
	}
	log.Printf("skip: armed for alarm=%d shift=%q trigger=%s", next.ID, next.ShiftName, next.FormattedTime)

	return domain.SkipResult{
		AlarmID:       next.ID,
		ShiftName:     next.ShiftName,
		FormattedTime: next.FormattedTime,
	}, nil
}

// CancelSkip clears any armed marker.
func (c *Controller) CancelSkip(ctx context.Context) error {
	if err := c.markers.ClearSkipMarker(ctx); err != nil {
		return &domain.StorageError{Op: "clear skip marker", Err: err}
	}
	log.Println("skip: cancelled")
	return nil
}

// CheckAndProcess is called at fire time before any side effect. A marker
// matching firedID is consumed and the alarm is suppressed; a marker for a
// different alarm is left untouched.
func (c *Controller) CheckAndProcess(ctx context.Context, firedID int32) domain.SkipDecision {
	marker, ok, err := c.markers.GetSkipMarker(ctx)
	if err != nil {
		// Fail open: execute the alarm rather than risk a missed wake.
		log.Printf("skip: marker read failed, failing open for alarm=%d: %v", firedID, err)
		return domain.AlarmExecuted
	}
	if !ok || marker.AlarmID != firedID {
		return domain.AlarmExecuted
	}

	if err := c.markers.ClearSkipMarker(ctx); err != nil {
		log.Printf("skip: failed to clear consumed marker alarm=%d: %v", firedID, err)
	}
	if c.metrics != nil {
		c.metrics.SkipConsumed()
	}
	log.Printf("skip: consumed marker, suppressing alarm=%d", firedID)
	return domain.AlarmSkipped
}
