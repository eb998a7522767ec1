package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"shiftwake/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_BareConfig(t *testing.T) {
	cfg := &config.Config{
		DatabaseDriver: "sqlite",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "CALENDAR_ICS_URLS not set") {
		t.Error("expected missing-feeds warning, got:", output)
	}
	if !strings.Contains(output, "CIRCUIT_BREAKER_THRESHOLD=0") {
		t.Error("expected breaker-disabled warning, got:", output)
	}
	if !strings.Contains(output, "TRIGGER_SECRET not set") {
		t.Error("expected unsigned-webhook warning, got:", output)
	}
	if !strings.Contains(output, "DATABASE_DRIVER=sqlite") {
		t.Error("expected single-writer INFO, got:", output)
	}
}

func TestLogConfigWarnings_FullConfig(t *testing.T) {
	cfg := &config.Config{
		DatabaseDriver:          "postgres",
		CalendarICSURLs:         "work=https://example.com/work.ics",
		CircuitBreakerThreshold: 5,
		TriggerSecret:           "secret",
		MetricsEnabled:          true,
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING") {
		t.Error("did not expect warnings for a fully configured instance, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("did not expect INFO lines for a fully configured instance, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{
		DatabaseDriver:          "postgres",
		CalendarICSURLs:         "work=https://example.com/work.ics",
		CircuitBreakerThreshold: 5,
		TriggerSecret:           "secret",
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "METRICS_ENABLED not set") {
		t.Error("expected metrics INFO line, got:", output)
	}
}
