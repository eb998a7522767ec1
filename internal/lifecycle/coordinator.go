// Package lifecycle owns the alarm set. A batch recompute atomically
// replaces every tracked alarm: the old set is cleared (device timers
// cancelled first, then rows deleted), then the new set is persisted and
// scheduled item by item. Concurrent recompute triggers collapse into a
// single execution via a check-and-set guard.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"shiftwake/internal/domain"
)

// AlarmStore persists AlarmInfo rows.
type AlarmStore interface {
	InsertAlarm(ctx context.Context, alarm domain.AlarmInfo) error
	DeleteAlarm(ctx context.Context, id int32) error
	DeleteAllAlarms(ctx context.Context) error
	ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error)
}

// Recognizer produces shift matches from events and config.
type Recognizer interface {
	Recognize(events []domain.CalendarEvent, config domain.ShiftConfig) []domain.ShiftMatch
}

// ConfigProvider reads the current shift configuration.
type ConfigProvider interface {
	Get(ctx context.Context) (domain.ShiftConfig, error)
}

// DeviceScheduler is the OS exact-wake adapter.
type DeviceScheduler interface {
	Schedule(id int32, triggerAt time.Time, payload domain.FirePayload) error
	Cancel(id int32)
}

// MetricsSink records coordinator metrics. Non-blocking, fire-and-forget.
type MetricsSink interface {
	RecomputeStarted()
	RecomputeCompleted(duration time.Duration, created int, err error)
	RecomputeRejected()
	AlarmScheduled()
	AlarmCancelled()
}

// Coordinator orchestrates clear-and-recreate alarm batches.
type Coordinator struct {
	alarms   AlarmStore
	engine   Recognizer
	device   DeviceScheduler
	registry ConfigProvider
	metrics  MetricsSink // optional, nil = disabled
	clock    func() time.Time

	// batch single-flight guard; concurrent callers get an empty success
	busy atomic.Bool
}

func New(alarms AlarmStore, engine Recognizer, device DeviceScheduler, registry ConfigProvider) *Coordinator {
	return &Coordinator{
		alarms:   alarms,
		engine:   engine,
		device:   device,
		registry: registry,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the coordinator.
func (c *Coordinator) WithMetrics(sink MetricsSink) *Coordinator {
	c.metrics = sink
	return c
}

// WithClock overrides the time source. For tests.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// CreateAlarmsFromEvents runs one full batch recompute.
//
// If a batch is already in flight the call returns an empty successful
// result: triggers arrive redundantly (config change, manual refresh,
// periodic check) and re-triggering shortly after is cheap.
//
// Per-item failures are logged and skipped; the returned slice holds the
// alarms that were both persisted and, where still in the future, scheduled.
func (c *Coordinator) CreateAlarmsFromEvents(ctx context.Context, events []domain.CalendarEvent) ([]domain.AlarmInfo, error) {
	if !c.busy.CompareAndSwap(false, true) {
		log.Println("lifecycle: batch already in flight, treating trigger as no-op")
		if c.metrics != nil {
			c.metrics.RecomputeRejected()
		}
		return []domain.AlarmInfo{}, nil
	}
	defer c.busy.Store(false)

	if c.metrics != nil {
		c.metrics.RecomputeStarted()
	}
	start := c.clock()

	created, err := c.recompute(ctx, events)

	if c.metrics != nil {
		c.metrics.RecomputeCompleted(c.clock().Sub(start), len(created), err)
	}
	return created, err
}

func (c *Coordinator) recompute(ctx context.Context, events []domain.CalendarEvent) ([]domain.AlarmInfo, error) {
	// Step 1: atomic clear. Cancel device timers first so no stale timer
	// can fire for an alarm no longer tracked in storage.
	if err := c.clear(ctx); err != nil {
		return nil, err
	}

	config, err := c.registry.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read shift config: %w", err)
	}
	if !config.AutoAlarmEnabled {
		log.Println("lifecycle: auto alarm disabled, alarm set left empty")
		return []domain.AlarmInfo{}, nil
	}

	// Step 2: matches.
	matches := c.engine.Recognize(events, config)

	// Step 3: per-match persist + schedule, individually fault-tolerant.
	now := c.clock()
	created := make([]domain.AlarmInfo, 0, len(matches))
	seen := make(map[int32]string, len(matches))
	batch := &domain.BatchError{Op: "create alarms"}

	for _, match := range matches {
		id := domain.AlarmIDForEvent(match.Event.ID)
		if prev, ok := seen[id]; ok {
			// Hash collision between distinct event ids: the later item
			// overwrites the earlier. Known risk, surfaced loudly.
			log.Printf("lifecycle: alarm id collision id=%d events=%q,%q; keeping later", id, prev, match.Event.ID)
		}
		seen[id] = match.Event.ID

		alarm := domain.AlarmInfo{
			ID:            id,
			EventID:       match.Event.ID,
			ShiftID:       match.Definition.ID,
			ShiftName:     match.Definition.Name,
			TriggerAt:     match.AlarmAt,
			FormattedTime: domain.FormatTriggerTime(match.AlarmAt),
			Active:        true,
			CreatedAt:     now,
		}

		if err := c.alarms.InsertAlarm(ctx, alarm); err != nil {
			storErr := &domain.StorageError{Op: "insert alarm", Err: err}
			log.Printf("lifecycle: event=%s: %v, skipping item", match.Event.ID, storErr)
			batch.Errors = append(batch.Errors, storErr)
			continue
		}

		if alarm.TriggerAt.After(now) {
			payload := domain.FirePayload{
				ShiftID:       alarm.ShiftID,
				ShiftName:     alarm.ShiftName,
				FormattedTime: alarm.FormattedTime,
			}
			if err := c.device.Schedule(alarm.ID, alarm.TriggerAt, payload); err != nil {
				// Row stays: recovery can re-arm it later.
				log.Printf("lifecycle: %v, keeping persisted row", err)
				batch.Errors = append(batch.Errors, err)
			} else if c.metrics != nil {
				c.metrics.AlarmScheduled()
			}
		} else {
			log.Printf("lifecycle: alarm %d trigger %s already in the past, persisted without timer", alarm.ID, alarm.FormattedTime)
		}

		created = append(created, alarm)
	}

	if err := batch.OrNil(); err != nil {
		log.Printf("lifecycle: batch finished with partial failures: %v", err)
	}

	log.Printf("lifecycle: batch complete, matches=%d created=%d failed=%d", len(matches), len(created), len(batch.Errors))
	return created, nil
}

// clear cancels every scheduled device timer for stored alarms, then
// deletes all persisted rows.
func (c *Coordinator) clear(ctx context.Context) error {
	existing, err := c.alarms.ListAlarms(ctx)
	if err != nil {
		return &domain.StorageError{Op: "list alarms for clear", Err: err}
	}

	for _, alarm := range existing {
		c.device.Cancel(alarm.ID)
		if c.metrics != nil {
			c.metrics.AlarmCancelled()
		}
	}

	if err := c.alarms.DeleteAllAlarms(ctx); err != nil {
		return &domain.StorageError{Op: "delete alarms for clear", Err: err}
	}
	return nil
}

// DeleteAlarm removes one alarm: device timer first, then the row.
// Single-item operation; failures propagate to the caller.
func (c *Coordinator) DeleteAlarm(ctx context.Context, id int32) error {
	c.device.Cancel(id)
	if c.metrics != nil {
		c.metrics.AlarmCancelled()
	}
	if err := c.alarms.DeleteAlarm(ctx, id); err != nil {
		return &domain.StorageError{Op: "delete alarm", Err: err}
	}
	return nil
}

// DeleteAllAlarms clears the whole set with the same cancel-then-delete
// ordering as a batch clear.
func (c *Coordinator) DeleteAllAlarms(ctx context.Context) error {
	return c.clear(ctx)
}

// ScheduleSystemAlarm re-arms the device timer for an already persisted
// alarm without recomputation. Used by the recovery coordinator.
func (c *Coordinator) ScheduleSystemAlarm(ctx context.Context, alarm domain.AlarmInfo) error {
	payload := domain.FirePayload{
		ShiftID:       alarm.ShiftID,
		ShiftName:     alarm.ShiftName,
		FormattedTime: alarm.FormattedTime,
	}
	if err := c.device.Schedule(alarm.ID, alarm.TriggerAt, payload); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.AlarmScheduled()
	}
	return nil
}
