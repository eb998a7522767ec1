// Package maintenance runs the periodic calendar refresh: fetch events for
// the configured lookahead window, then recompute the alarm set from them.
package maintenance

import (
	"context"
	"log"
	"sync"
	"time"

	"shiftwake/internal/domain"
)

// EventSource fetches upcoming calendar events.
type EventSource interface {
	Events(ctx context.Context, calendarIDs []string, daysAhead int) ([]domain.CalendarEvent, error)
}

// Recomputer rebuilds the alarm set from a snapshot of events.
type Recomputer interface {
	CreateAlarmsFromEvents(ctx context.Context, events []domain.CalendarEvent) ([]domain.AlarmInfo, error)
}

// ConfigProvider reads the current shift configuration.
type ConfigProvider interface {
	Get(ctx context.Context) (domain.ShiftConfig, error)
}

// Worker drives the refresh cycle on a cron schedule. Start/Stop/Restart are
// safe to call from any goroutine; the recovery coordinator restarts the
// worker after boot and update signals.
type Worker struct {
	schedule    Schedule
	source      EventSource
	recompute   Recomputer
	registry    ConfigProvider
	calendarIDs []string
	clock       func() time.Time

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(schedule Schedule, source EventSource, recompute Recomputer, registry ConfigProvider, calendarIDs []string) *Worker {
	return &Worker{
		schedule:    schedule,
		source:      source,
		recompute:   recompute,
		registry:    registry,
		calendarIDs: calendarIDs,
		clock:       time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (w *Worker) WithClock(clock func() time.Time) *Worker {
	w.clock = clock
	return w
}

// Start launches the refresh loop. Calling Start on a running worker is a
// no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.base = ctx
	w.startLocked()
}

func (w *Worker) startLocked() {
	if w.done != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(w.base)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)
	log.Println("maintenance: worker started")
}

// Stop halts the loop and waits for it to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *Worker) stopLocked() {
	if w.done == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
	log.Println("maintenance: worker stopped")
}

// Restart stops the loop if running and starts a fresh one. Used by recovery
// to shake off any stuck state after boot or update signals.
func (w *Worker) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.base == nil {
		log.Println("maintenance: restart requested before start, ignoring")
		return
	}
	w.stopLocked()
	w.startLocked()
	log.Println("maintenance: worker restarted")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := w.clock()
		next := w.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := w.RunNow(ctx); err != nil {
				log.Printf("maintenance: refresh failed: %v", err)
			}
		}
	}
}

// RunNow performs one refresh cycle immediately: fetch events within the
// configured lookahead, then recompute the alarm set from the snapshot.
func (w *Worker) RunNow(ctx context.Context) error {
	config, err := w.registry.Get(ctx)
	if err != nil {
		return err
	}
	if !config.AutoAlarmEnabled {
		log.Println("maintenance: automation disabled, skipping refresh")
		return nil
	}

	events, err := w.source.Events(ctx, w.calendarIDs, config.Lookahead())
	if err != nil {
		return err
	}

	created, err := w.recompute.CreateAlarmsFromEvents(ctx, events)
	if err != nil {
		return err
	}
	log.Printf("maintenance: refresh complete, events=%d alarms=%d", len(events), len(created))
	return nil
}
