package analytics

import (
	"context"
	"testing"
	"time"

	"shiftwake/internal/domain"
)

func TestBuildKey_Buckets(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	tests := []struct {
		name   string
		window time.Duration
		want   string
	}{
		{"hourly", time.Hour, "s:early:o:executed:2026031415"},
		{"daily", 24 * time.Hour, "s:early:o:executed:20260314"},
		{"unknown window defaults to daily", 7 * 24 * time.Hour, "s:early:o:executed:20260314"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildKey("early", domain.FireOutcomeExecuted, at, tt.window)
			if got != tt.want {
				t.Errorf("buildKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateToBucket_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	local := time.Date(2026, 3, 15, 0, 30, 0, 0, loc) // 23:30 UTC the day before

	if got := truncateToBucket(local, 24*time.Hour); got != "20260314" {
		t.Errorf("bucket = %q, want UTC date 20260314", got)
	}
}

func TestRecord_DisabledIsNoop(t *testing.T) {
	// A disabled sink must not touch the client at all; a nil client would
	// panic on any call.
	sink := NewRedisSink(nil, domain.AnalyticsConfig{Enabled: false})
	sink.Record(context.Background(), "early", domain.FireOutcomeExecuted, time.Now())
}
