// Package recovery re-establishes device wake timers and downstream workers
// after the OS discards in-memory state (reboot, app update).
//
// The procedure is a bounded-retry state machine:
//
//	Idle → Attempting(n) → {Success | Attempting(n+1) | ExhaustedFallback}
//
// with a fixed inter-attempt delay rather than exponential backoff: the
// human impact of a missed work alarm is high, and all retries must finish
// within the settle window after boot.
package recovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"shiftwake/internal/domain"
)

// AlarmStore reads the persisted alarm set.
type AlarmStore interface {
	ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error)
	CountAlarms(ctx context.Context) (int, error)
}

// Lifecycle is the slice of the alarm lifecycle coordinator recovery needs.
type Lifecycle interface {
	ScheduleSystemAlarm(ctx context.Context, alarm domain.AlarmInfo) error
	CreateAlarmsFromEvents(ctx context.Context, events []domain.CalendarEvent) ([]domain.AlarmInfo, error)
}

// EventCache provides the cached calendar events used to re-derive alarms
// when too few could be restored from storage.
type EventCache interface {
	ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error)
}

// AuthProber reports the calendar collaborator's authorization state for the
// diagnostics snapshot.
type AuthProber interface {
	AuthStatus(ctx context.Context) domain.AuthStatus
}

// Worker is the downstream periodic maintenance worker.
type Worker interface {
	Restart()
	// RunNow performs an urgent out-of-band resync.
	RunNow(ctx context.Context) error
}

// MetricsSink records recovery metrics. Non-blocking, fire-and-forget.
type MetricsSink interface {
	RecoveryAttempt(attempt int)
	RecoveryCompleted(outcome string, restored int)
}

// Recovery completion outcomes for metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
)

// Config holds the recovery coordinator tuning.
type Config struct {
	// SettleDelay is waited before the first attempt, letting the system
	// finish booting. Default: 5s.
	SettleDelay time.Duration

	// MaxAttempts bounds the number of full attempt sequences. Default: 3.
	MaxAttempts int

	// AttemptDelay is the fixed delay between attempts. Default: 10s.
	AttemptDelay time.Duration

	// MinRestored is the alarm count below which recovery re-derives the
	// set from cached calendar events. Default: 1.
	MinRestored int

	// HealthCheckDelay schedules the post-recovery health check. Default: 2m.
	HealthCheckDelay time.Duration
}

// DefaultConfig returns the default recovery tuning.
func DefaultConfig() Config {
	return Config{
		SettleDelay:      5 * time.Second,
		MaxAttempts:      3,
		AttemptDelay:     10 * time.Second,
		MinRestored:      1,
		HealthCheckDelay: 2 * time.Minute,
	}
}

// Coordinator runs the recovery procedure for boot/update signals.
type Coordinator struct {
	config    Config
	alarms    AlarmStore
	lifecycle Lifecycle
	events    EventCache
	prober    AuthProber
	worker    Worker
	metrics   MetricsSink // optional, nil = disabled
	clock     func() time.Time
	wait      func(ctx context.Context, d time.Duration) error
}

func New(config Config, alarms AlarmStore, lc Lifecycle, events EventCache, prober AuthProber, worker Worker) *Coordinator {
	return &Coordinator{
		config:    config,
		alarms:    alarms,
		lifecycle: lc,
		events:    events,
		prober:    prober,
		worker:    worker,
		clock:     time.Now,
		wait:      sleepCtx,
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

// WithWait overrides the delay primitive. For tests.
func (c *Coordinator) WithWait(wait func(ctx context.Context, d time.Duration) error) *Coordinator {
	c.wait = wait
	return c
}

// HandleSignal runs the full recovery procedure for one boot/update signal.
// It never lets a failure escape to crash the host process; the error return
// only reports exhaustion for callers that want to log it.
func (c *Coordinator) HandleSignal(ctx context.Context, reason string) error {
	log.Printf("recovery: signal received reason=%s, settling for %s", reason, c.config.SettleDelay)

	if err := c.wait(ctx, c.config.SettleDelay); err != nil {
		log.Printf("recovery: cancelled during settle delay: %v", err)
		return err
	}

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if c.metrics != nil {
			c.metrics.RecoveryAttempt(attempt)
		}
		log.Printf("recovery: attempt %d/%d", attempt, c.config.MaxAttempts)

		restored, err := c.runAttempt(ctx, reason)
		if err == nil {
			log.Printf("recovery: attempt %d succeeded, restored=%d", attempt, restored)
			if c.metrics != nil {
				c.metrics.RecoveryCompleted(OutcomeSuccess, restored)
			}
			c.scheduleHealthCheck(ctx)
			return nil
		}

		log.Printf("recovery: attempt %d failed: %v", attempt, err)
		if attempt < c.config.MaxAttempts {
			if werr := c.wait(ctx, c.config.AttemptDelay); werr != nil {
				log.Printf("recovery: cancelled between attempts: %v", werr)
				return werr
			}
		}
	}

	// Exhausted: the fallback is deliberately minimal. Restart the periodic
	// maintenance worker, give up on alarm restoration, stay alive.
	log.Printf("recovery: all %d attempts exhausted, falling back to worker restart only", c.config.MaxAttempts)
	c.worker.Restart()
	if c.metrics != nil {
		c.metrics.RecoveryCompleted(OutcomeExhausted, 0)
	}
	return fmt.Errorf("recovery exhausted after %d attempts", c.config.MaxAttempts)
}

// runAttempt performs one full attempt sequence. Each step is individually
// fault-tolerant; only structural failures (storage unreadable) fail the
// attempt as a whole.
func (c *Coordinator) runAttempt(ctx context.Context, reason string) (int, error) {
	// Diagnostics snapshot.
	authStatus := c.prober.AuthStatus(ctx)
	alarmCount, err := c.alarms.CountAlarms(ctx)
	if err != nil {
		alarmCount = -1
	}
	log.Printf("recovery: diagnostics reason=%s auth=%s stored_alarms=%d", reason, authStatus, alarmCount)

	// Re-arm every persisted future alarm.
	now := c.clock()
	future, err := c.alarms.ListFutureAlarms(ctx, now)
	if err != nil {
		return 0, &domain.StorageError{Op: "list future alarms", Err: err}
	}

	restored := 0
	for _, alarm := range future {
		if err := c.lifecycle.ScheduleSystemAlarm(ctx, alarm); err != nil {
			log.Printf("recovery: re-arm failed alarm=%d: %v", alarm.ID, err)
			continue
		}
		restored++
	}
	log.Printf("recovery: re-armed %d/%d persisted alarms", restored, len(future))

	// Too few restored: re-derive the set from cached calendar events.
	if restored < c.config.MinRestored {
		cached, err := c.events.ListCachedEvents(ctx)
		if err != nil {
			log.Printf("recovery: cached events unavailable: %v", err)
		} else if len(cached) > 0 {
			created, err := c.lifecycle.CreateAlarmsFromEvents(ctx, cached)
			if err != nil {
				log.Printf("recovery: re-derive from cached events failed: %v", err)
			} else {
				log.Printf("recovery: re-derived %d alarms from %d cached events", len(created), len(cached))
				restored = len(created)
			}
		} else {
			log.Println("recovery: no cached events to re-derive from")
		}
	}

	// Restart downstream periodic maintenance.
	c.worker.Restart()

	return restored, nil
}

// scheduleHealthCheck arms the delayed post-recovery check: if the alarm
// count is still below the threshold, an urgent out-of-band resync runs.
func (c *Coordinator) scheduleHealthCheck(ctx context.Context) {
	go func() {
		if err := c.wait(ctx, c.config.HealthCheckDelay); err != nil {
			return
		}
		count, err := c.alarms.CountAlarms(ctx)
		if err != nil {
			log.Printf("recovery: health check count failed: %v", err)
			return
		}
		if count >= c.config.MinRestored {
			log.Printf("recovery: health check passed, alarms=%d", count)
			return
		}
		log.Printf("recovery: health check low alarm count=%d, triggering urgent resync", count)
		if err := c.worker.RunNow(ctx); err != nil {
			log.Printf("recovery: urgent resync failed: %v", err)
		}
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
