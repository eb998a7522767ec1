// Package firing handles fire events from the device scheduler.
//
// The skip check runs before any side effect. On a non-skip the downstream
// trigger collaborator (notification/full-screen bridge, lighting rules) is
// invoked over a signed webhook with bounded retries; its failures are
// logged and never block alarm delivery.
package firing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shiftwake/internal/circuitbreaker"
	"shiftwake/internal/domain"
)

var defaultBackoff = []time.Duration{
	0,
	5 * time.Second,
	15 * time.Second,
	60 * time.Second,
}

const maxAttempts = 4

// ErrOutcomeFinal is returned when an outcome update would regress a fire
// record already in a terminal state.
var ErrOutcomeFinal = errors.New("fire outcome already final")

// SkipChecker decides at fire time whether an alarm is suppressed.
type SkipChecker interface {
	CheckAndProcess(ctx context.Context, firedID int32) domain.SkipDecision
}

// FireStore persists the fire audit trail.
type FireStore interface {
	InsertFire(ctx context.Context, record domain.FireRecord) error
	// UpdateFireOutcome MUST reject transitions from terminal outcomes and
	// return ErrOutcomeFinal, so replays stay idempotent.
	UpdateFireOutcome(ctx context.Context, id uuid.UUID, outcome domain.FireOutcome) error
}

// AnalyticsSink records fire outcomes as a best-effort side effect.
type AnalyticsSink interface {
	Record(ctx context.Context, shiftID string, outcome domain.FireOutcome, at time.Time)
}

// MetricsSink records handler metrics. Non-blocking, fire-and-forget.
type MetricsSink interface {
	TriggerAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	FireOutcome(outcome string)
	RetryAttempt(retryable bool)
	FiresInFlightIncr()
	FiresInFlightDecr()
}

type Handler struct {
	skip      SkipChecker
	sender    TriggerSender
	fires     FireStore
	trigger   domain.TriggerConfig
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
	breaker   *circuitbreaker.Breaker // optional, nil = disabled

	backoff      []time.Duration
	drainTimeout time.Duration
}

func New(skip SkipChecker, sender TriggerSender, fires FireStore, trigger domain.TriggerConfig) *Handler {
	return &Handler{
		skip:         skip,
		sender:       sender,
		fires:        fires,
		trigger:      trigger,
		backoff:      defaultBackoff,
		drainTimeout: 30 * time.Second,
	}
}

func (h *Handler) WithAnalytics(sink AnalyticsSink) *Handler {
	h.analytics = sink
	return h
}

func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

func (h *Handler) WithBreaker(b *circuitbreaker.Breaker) *Handler {
	h.breaker = b
	return h
}

// WithDrainTimeout bounds the shutdown drain.
func (h *Handler) WithDrainTimeout(d time.Duration) *Handler {
	h.drainTimeout = d
	return h
}

// Run processes fire events from the channel until the context is
// cancelled, then drains remaining buffered events with a timeout.
func (h *Handler) Run(ctx context.Context, ch <-chan domain.FireEvent) {
	for {
		select {
		case <-ctx.Done():
			h.drain(ch)
			return
		case event := <-ch:
			if err := h.Handle(ctx, event); err != nil {
				log.Printf("firing: error: %v", err)
			}
		}
	}
}

// drain processes events still buffered after the shutdown signal, using a
// fresh context since the main one is already cancelled.
func (h *Handler) drain(ch <-chan domain.FireEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), h.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("firing: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("firing: drain complete, processed %d events", count)
				return
			}
			if err := h.Handle(drainCtx, event); err != nil {
				log.Printf("firing: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("firing: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Handle processes one fire event to a terminal outcome.
func (h *Handler) Handle(ctx context.Context, event domain.FireEvent) error {
	if h.metrics != nil {
		h.metrics.FiresInFlightIncr()
		defer h.metrics.FiresInFlightDecr()
	}

	record := domain.FireRecord{
		ID:          event.ExecutionID,
		AlarmID:     event.AlarmID,
		ShiftID:     event.ShiftID,
		ShiftName:   event.ShiftName,
		ScheduledAt: event.ScheduledAt,
		FiredAt:     event.FiredAt,
		Outcome:     domain.FireOutcomePending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.fires.InsertFire(ctx, record); err != nil {
		// Audit trail failure must not cost the wake event.
		log.Printf("firing: failed to record fire alarm=%d: %v", event.AlarmID, err)
	}

	// Skip check comes before any side effect.
	if h.skip.CheckAndProcess(ctx, event.AlarmID) == domain.AlarmSkipped {
		log.Printf("firing: alarm=%d shift=%q suppressed by skip marker", event.AlarmID, event.ShiftName)
		h.finish(ctx, event, domain.FireOutcomeSkipped)

		// Best effort: tell the notification side a skip happened.
		h.sendOnce(ctx, event, kindSkipped)
		return nil
	}

	if h.trigger.WebhookURL == "" {
		log.Printf("firing: alarm=%d no trigger webhook configured", event.AlarmID)
		h.finish(ctx, event, domain.FireOutcomeFailed)
		return fmt.Errorf("alarm %d: no trigger webhook", event.AlarmID)
	}

	if h.deliver(ctx, event) {
		h.finish(ctx, event, domain.FireOutcomeExecuted)
		return nil
	}
	h.finish(ctx, event, domain.FireOutcomeFailed)
	return nil
}

// deliver runs the bounded retry loop. Returns true on success.
func (h *Handler) deliver(ctx context.Context, event domain.FireEvent) bool {
	var lastResult TriggerResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if h.metrics != nil {
				h.metrics.RetryAttempt(lastResult.IsRetryable())
			}

			idx := attempt - 1
			if idx >= len(h.backoff) {
				idx = len(h.backoff) - 1
			}
			backoff := h.backoff[idx]
			log.Printf("firing: alarm=%d attempt=%d backoff=%s", event.AlarmID, attempt, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return false
			case <-timer.C:
			}
		}

		if h.breaker != nil {
			if err := h.breaker.Allow(); err != nil {
				log.Printf("firing: alarm=%d trigger endpoint circuit open, abandoning delivery", event.AlarmID)
				return false
			}
		}

		result := h.sendOnce(ctx, event, kindAlarm)
		lastResult = result

		if h.metrics != nil {
			h.metrics.TriggerAttemptCompleted(attempt, classifyStatus(result.StatusCode, result.Error), result.Duration)
		}

		if result.IsSuccess() {
			if h.breaker != nil {
				h.breaker.RecordSuccess()
			}
			log.Printf("firing: alarm=%d trigger delivered attempt=%d", event.AlarmID, attempt)
			return true
		}
		if h.breaker != nil {
			h.breaker.RecordFailure()
		}

		if !result.IsRetryable() {
			log.Printf("firing: alarm=%d non-retryable status=%d", event.AlarmID, result.StatusCode)
			return false
		}
		log.Printf("firing: alarm=%d attempt=%d failed status=%d err=%v", event.AlarmID, attempt, result.StatusCode, result.Error)
	}

	log.Printf("firing: alarm=%d trigger delivery failed status=%d err=%v", event.AlarmID, lastResult.StatusCode, lastResult.Error)
	return false
}

// sendOnce performs a single trigger webhook call.
func (h *Handler) sendOnce(ctx context.Context, event domain.FireEvent, kind string) TriggerResult {
	req := TriggerRequest{
		URL:       h.trigger.WebhookURL,
		Secret:    h.trigger.Secret,
		Timeout:   h.trigger.Timeout,
		AttemptID: uuid.New().String(),
		Payload: TriggerPayload{
			Kind:          kind,
			AlarmID:       event.AlarmID,
			ExecutionID:   event.ExecutionID.String(),
			ShiftID:       event.ShiftID,
			ShiftName:     event.ShiftName,
			FormattedTime: event.FormattedTime,
			ScheduledAt:   event.ScheduledAt.UTC().Format(time.RFC3339),
			FiredAt:       event.FiredAt.UTC().Format(time.RFC3339),
		},
	}
	if req.URL == "" {
		return TriggerResult{Error: errors.New("no trigger webhook configured")}
	}
	return h.sender.Send(ctx, req)
}

// finish records the terminal outcome in the audit trail, analytics and
// metrics. Storage failures are logged, never propagated.
func (h *Handler) finish(ctx context.Context, event domain.FireEvent, outcome domain.FireOutcome) {
	if err := h.fires.UpdateFireOutcome(ctx, event.ExecutionID, outcome); err != nil {
		if errors.Is(err, ErrOutcomeFinal) {
			log.Printf("firing: alarm=%d execution=%s already terminal, outcome untouched", event.AlarmID, event.ExecutionID)
		} else {
			log.Printf("firing: failed to record outcome alarm=%d: %v", event.AlarmID, err)
		}
	}
	if h.metrics != nil {
		h.metrics.FireOutcome(string(outcome))
	}
	if h.analytics != nil {
		h.analytics.Record(ctx, event.ShiftID, outcome, event.FiredAt)
	}
}

// classifyStatus maps a status code and error to a bounded-cardinality
// metrics class.
func classifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := err.Error()
		if containsFold(msg, "timeout") || containsFold(msg, "deadline exceeded") {
			return "timeout"
		}
		if containsFold(msg, "connection refused") || containsFold(msg, "no such host") ||
			containsFold(msg, "network is unreachable") || containsFold(msg, "dial") {
			return "connection_error"
		}
		return "other_error"
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
