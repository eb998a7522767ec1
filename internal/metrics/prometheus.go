package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Alarm lifecycle metrics
	recomputesTotal      prometheus.Counter
	recomputeErrorsTotal prometheus.Counter
	recomputesRejected   prometheus.Counter
	alarmsCreatedTotal   prometheus.Counter
	recomputeDuration    prometheus.Histogram
	alarmsScheduledTotal prometheus.Counter
	alarmsCancelledTotal prometheus.Counter

	// Skip metrics
	skipsArmedTotal    prometheus.Counter
	skipsConsumedTotal prometheus.Counter

	// Firing metrics
	triggerAttemptsTotal *prometheus.CounterVec
	fireOutcomesTotal    *prometheus.CounterVec
	triggerDuration      prometheus.Histogram
	retryAttemptsTotal   *prometheus.CounterVec
	firesInFlight        prometheus.Gauge

	// Fire bus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Recovery metrics
	recoveryAttemptsTotal  prometheus.Counter
	recoveryOutcomesTotal  *prometheus.CounterVec
	recoveryAlarmsRestored prometheus.Histogram
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initLifecycleMetrics(reg)
	s.initSkipMetrics(reg)
	s.initFiringMetrics(reg)
	s.initBusMetrics(reg)
	s.initRecoveryMetrics(reg)
	return s
}

func (s *PrometheusSink) initLifecycleMetrics(reg prometheus.Registerer) {
	s.recomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_recomputes_total",
		Help: "Total number of alarm recompute batches started.",
	})
	s.recomputeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_recompute_errors_total",
		Help: "Total number of recompute batches that finished with an error.",
	})
	s.recomputesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_recomputes_rejected_total",
		Help: "Total number of recompute requests rejected because one was already running.",
	})
	s.alarmsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_alarms_created_total",
		Help: "Total number of alarms created by recompute batches.",
	})
	s.recomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shiftwake_lifecycle_recompute_duration_seconds",
		Help:    "Duration of each alarm recompute batch in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.alarmsScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_alarms_scheduled_total",
		Help: "Total number of device wake timers armed.",
	})
	s.alarmsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_lifecycle_alarms_cancelled_total",
		Help: "Total number of device wake timers cancelled.",
	})

	s.register(reg, s.recomputesTotal, "shiftwake_lifecycle_recomputes_total")
	s.register(reg, s.recomputeErrorsTotal, "shiftwake_lifecycle_recompute_errors_total")
	s.register(reg, s.recomputesRejected, "shiftwake_lifecycle_recomputes_rejected_total")
	s.register(reg, s.alarmsCreatedTotal, "shiftwake_lifecycle_alarms_created_total")
	s.register(reg, s.recomputeDuration, "shiftwake_lifecycle_recompute_duration_seconds")
	s.register(reg, s.alarmsScheduledTotal, "shiftwake_lifecycle_alarms_scheduled_total")
	s.register(reg, s.alarmsCancelledTotal, "shiftwake_lifecycle_alarms_cancelled_total")
}

func (s *PrometheusSink) initSkipMetrics(reg prometheus.Registerer) {
	s.skipsArmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_skip_armed_total",
		Help: "Total number of skip markers armed.",
	})
	s.skipsConsumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_skip_consumed_total",
		Help: "Total number of skip markers consumed at fire time.",
	})

	s.register(reg, s.skipsArmedTotal, "shiftwake_skip_armed_total")
	s.register(reg, s.skipsConsumedTotal, "shiftwake_skip_consumed_total")
}

func (s *PrometheusSink) initFiringMetrics(reg prometheus.Registerer) {
	s.triggerAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftwake_firing_trigger_attempts_total",
		Help: "Total number of downstream trigger delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.fireOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftwake_firing_outcomes_total",
		Help: "Total number of final fire outcomes.",
	}, []string{"outcome"})

	s.triggerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shiftwake_firing_trigger_duration_seconds",
		Help:    "Trigger request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftwake_firing_retry_attempts_total",
		Help: "Total number of retry attempts (excludes first attempt).",
	}, []string{"retryable"})

	s.firesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shiftwake_firing_fires_in_flight",
		Help: "Number of fire events currently being handled.",
	})

	s.register(reg, s.triggerAttemptsTotal, "shiftwake_firing_trigger_attempts_total")
	s.register(reg, s.fireOutcomesTotal, "shiftwake_firing_outcomes_total")
	s.register(reg, s.triggerDuration, "shiftwake_firing_trigger_duration_seconds")
	s.register(reg, s.retryAttemptsTotal, "shiftwake_firing_retry_attempts_total")
	s.register(reg, s.firesInFlight, "shiftwake_firing_fires_in_flight")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shiftwake_firebus_buffer_size",
		Help: "Current number of fire events in the bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shiftwake_firebus_buffer_capacity",
		Help: "Configured capacity of the fire bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_firebus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "shiftwake_firebus_buffer_size")
	s.register(reg, s.bufferCapacity, "shiftwake_firebus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "shiftwake_firebus_emit_errors_total")
}

func (s *PrometheusSink) initRecoveryMetrics(reg prometheus.Registerer) {
	s.recoveryAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftwake_recovery_attempts_total",
		Help: "Total number of recovery attempts started.",
	})
	s.recoveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftwake_recovery_outcomes_total",
		Help: "Total number of completed recovery procedures.",
	}, []string{"outcome"})
	s.recoveryAlarmsRestored = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shiftwake_recovery_alarms_restored",
		Help:    "Number of alarms restored per successful recovery.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	s.register(reg, s.recoveryAttemptsTotal, "shiftwake_recovery_attempts_total")
	s.register(reg, s.recoveryOutcomesTotal, "shiftwake_recovery_outcomes_total")
	s.register(reg, s.recoveryAlarmsRestored, "shiftwake_recovery_alarms_restored")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Alarm lifecycle metrics implementation

func (s *PrometheusSink) RecomputeStarted() {
	s.recomputesTotal.Inc()
}

func (s *PrometheusSink) RecomputeCompleted(duration time.Duration, created int, err error) {
	s.recomputeDuration.Observe(duration.Seconds())
	s.alarmsCreatedTotal.Add(float64(created))
	if err != nil {
		s.recomputeErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) RecomputeRejected() {
	s.recomputesRejected.Inc()
}

func (s *PrometheusSink) AlarmScheduled() {
	s.alarmsScheduledTotal.Inc()
}

func (s *PrometheusSink) AlarmCancelled() {
	s.alarmsCancelledTotal.Inc()
}

// Skip metrics implementation

func (s *PrometheusSink) SkipArmed() {
	s.skipsArmedTotal.Inc()
}

func (s *PrometheusSink) SkipConsumed() {
	s.skipsConsumedTotal.Inc()
}

// Firing metrics implementation

func (s *PrometheusSink) TriggerAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.triggerAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.triggerDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) FireOutcome(outcome string) {
	s.fireOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryAttempt(retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	s.retryAttemptsTotal.WithLabelValues(label).Inc()
}

func (s *PrometheusSink) FiresInFlightIncr() {
	s.firesInFlight.Inc()
}

func (s *PrometheusSink) FiresInFlightDecr() {
	s.firesInFlight.Dec()
}

// Fire bus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Recovery metrics implementation

func (s *PrometheusSink) RecoveryAttempt(attempt int) {
	s.recoveryAttemptsTotal.Inc()
}

func (s *PrometheusSink) RecoveryCompleted(outcome string, restored int) {
	s.recoveryOutcomesTotal.WithLabelValues(outcome).Inc()
	if restored >= 0 {
		s.recoveryAlarmsRestored.Observe(float64(restored))
	}
}

var _ Sink = (*PrometheusSink)(nil)
