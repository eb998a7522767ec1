package testutil

import (
	"testing"
	"time"
)

func TestFakeClock_Now(t *testing.T) {
	fixed := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	clock := NewFakeClock(fixed)

	got := clock.Now()
	if !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
}

func TestFakeClock_Advance(t *testing.T) {
	fixed := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	clock := NewFakeClock(fixed)

	clock.Advance(5 * time.Minute)

	want := fixed.Add(5 * time.Minute)
	got := clock.Now()
	if !got.Equal(want) {
		t.Errorf("after Advance(5m), Now() = %v, want %v", got, want)
	}
}

func TestTestContext_HasDeadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("TestContext should have a deadline")
	}

	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > 6*time.Second {
		t.Errorf("deadline should be ~5s from now, got %v", remaining)
	}
}
