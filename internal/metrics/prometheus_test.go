package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPrometheusSink_RecomputeMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RecomputeStarted()
	sink.RecomputeStarted()
	sink.RecomputeCompleted(50*time.Millisecond, 3, nil)
	sink.RecomputeCompleted(10*time.Millisecond, 0, errors.New("boom"))
	sink.RecomputeRejected()

	if got := getCounterValue(t, reg, "shiftwake_lifecycle_recomputes_total"); got != 2 {
		t.Errorf("recomputes_total = %v, want 2", got)
	}
	if got := getCounterValue(t, reg, "shiftwake_lifecycle_recompute_errors_total"); got != 1 {
		t.Errorf("recompute_errors_total = %v, want 1", got)
	}
	if got := getCounterValue(t, reg, "shiftwake_lifecycle_alarms_created_total"); got != 3 {
		t.Errorf("alarms_created_total = %v, want 3", got)
	}
	if got := getCounterValue(t, reg, "shiftwake_lifecycle_recomputes_rejected_total"); got != 1 {
		t.Errorf("recomputes_rejected_total = %v, want 1", got)
	}
}

func TestPrometheusSink_FiringMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerAttemptCompleted(1, "2xx", 200*time.Millisecond)
	sink.TriggerAttemptCompleted(2, "5xx", 100*time.Millisecond)
	sink.FireOutcome("executed")
	sink.FireOutcome("executed")
	sink.FireOutcome("skipped")
	sink.RetryAttempt(true)
	sink.FiresInFlightIncr()
	sink.FiresInFlightIncr()
	sink.FiresInFlightDecr()

	if got := getCounterVecValue(t, reg, "shiftwake_firing_trigger_attempts_total", map[string]string{"attempt": "1", "status_class": "2xx"}); got != 1 {
		t.Errorf("attempt=1/2xx = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "shiftwake_firing_outcomes_total", map[string]string{"outcome": "executed"}); got != 2 {
		t.Errorf("outcome=executed = %v, want 2", got)
	}
	if got := getCounterVecValue(t, reg, "shiftwake_firing_retry_attempts_total", map[string]string{"retryable": "true"}); got != 1 {
		t.Errorf("retryable=true = %v, want 1", got)
	}
	if got := getGaugeValue(t, reg, "shiftwake_firing_fires_in_flight"); got != 1 {
		t.Errorf("fires_in_flight = %v, want 1", got)
	}
}

func TestPrometheusSink_BusAndRecoveryMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BufferCapacitySet(100)
	sink.BufferSizeUpdate(7)
	sink.EmitError()
	sink.RecoveryAttempt(1)
	sink.RecoveryAttempt(2)
	sink.RecoveryCompleted("success", 4)

	if got := getGaugeValue(t, reg, "shiftwake_firebus_buffer_capacity"); got != 100 {
		t.Errorf("buffer_capacity = %v, want 100", got)
	}
	if got := getGaugeValue(t, reg, "shiftwake_firebus_buffer_size"); got != 7 {
		t.Errorf("buffer_size = %v, want 7", got)
	}
	if got := getCounterValue(t, reg, "shiftwake_firebus_emit_errors_total"); got != 1 {
		t.Errorf("emit_errors_total = %v, want 1", got)
	}
	if got := getCounterValue(t, reg, "shiftwake_recovery_attempts_total"); got != 2 {
		t.Errorf("recovery_attempts_total = %v, want 2", got)
	}
	if got := getCounterVecValue(t, reg, "shiftwake_recovery_outcomes_total", map[string]string{"outcome": "success"}); got != 1 {
		t.Errorf("recovery outcome success = %v, want 1", got)
	}
}

func TestPrometheusSink_DuplicateRegistrationSurvives(t *testing.T) {
	reg := prometheus.NewRegistry()
	// Registering twice on the same registry logs but must not panic.
	NewPrometheusSink(reg)
	sink := NewPrometheusSink(reg)
	sink.RecomputeStarted()
	sink.SkipArmed()
}
