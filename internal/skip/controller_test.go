package skip

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftwake/internal/domain"
	"shiftwake/internal/testutil"
)

type mockAlarms struct {
	alarms []domain.AlarmInfo
	err    error
}

func (m *mockAlarms) ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.AlarmInfo
	for _, a := range m.alarms {
		if a.TriggerAt.After(after) {
			out = append(out, a)
		}
	}
	return out, nil
}

type mockMarkers struct {
	marker   *domain.SkipMarker
	getErr   error
	setErr   error
	clearErr error
}

func (m *mockMarkers) GetSkipMarker(ctx context.Context) (domain.SkipMarker, bool, error) {
	if m.getErr != nil {
		return domain.SkipMarker{}, false, m.getErr
	}
	if m.marker == nil {
		return domain.SkipMarker{}, false, nil
	}
	return *m.marker, true, nil
}

func (m *mockMarkers) SetSkipMarker(ctx context.Context, marker domain.SkipMarker) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.marker = &marker
	return nil
}

func (m *mockMarkers) ClearSkipMarker(ctx context.Context) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.marker = nil
	return nil
}

var testNow = time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)

func alarm(id int32, name string, trigger time.Time) domain.AlarmInfo {
	return domain.AlarmInfo{
		ID:            id,
		ShiftName:     name,
		TriggerAt:     trigger,
		FormattedTime: domain.FormatTriggerTime(trigger),
		Active:        true,
	}
}

func newController(alarms *mockAlarms, markers *mockMarkers) *Controller {
	return New(alarms, markers).WithClock(testutil.NewFakeClock(testNow).Now)
}

func TestSkipNext_TargetsSmallestFutureTrigger(t *testing.T) {
	alarms := &mockAlarms{alarms: []domain.AlarmInfo{
		alarm(1, "Spätschicht", testNow.Add(30*time.Hour)),
		alarm(2, "Frühschicht", testNow.Add(17*time.Hour)),
		alarm(3, "Nachtschicht", testNow.Add(50*time.Hour)),
	}}
	markers := &mockMarkers{}

	result, err := newController(alarms, markers).SkipNext(context.Background())
	if err != nil {
		t.Fatalf("SkipNext failed: %v", err)
	}
	if result.AlarmID != 2 {
		t.Errorf("targeted alarm = %d, want 2 (earliest future)", result.AlarmID)
	}
	if result.ShiftName != "Frühschicht" {
		t.Errorf("ShiftName = %q", result.ShiftName)
	}
	if markers.marker == nil || markers.marker.AlarmID != 2 {
		t.Errorf("marker = %+v, want armed for alarm 2", markers.marker)
	}
	if !markers.marker.SetAt.Equal(testNow) {
		t.Errorf("SetAt = %v, want clock time", markers.marker.SetAt)
	}
}

func TestSkipNext_ReplacesPreviousMarker(t *testing.T) {
	alarms := &mockAlarms{alarms: []domain.AlarmInfo{alarm(5, "Früh", testNow.Add(time.Hour))}}
	markers := &mockMarkers{marker: &domain.SkipMarker{AlarmID: 99, SetAt: testNow.Add(-time.Hour)}}

	if _, err := newController(alarms, markers).SkipNext(context.Background()); err != nil {
		t.Fatalf("SkipNext failed: %v", err)
	}
	if markers.marker.AlarmID != 5 {
		t.Errorf("marker = %d, want single slot replaced with 5", markers.marker.AlarmID)
	}
}

func TestSkipNext_NoFutureAlarm(t *testing.T) {
	alarms := &mockAlarms{alarms: []domain.AlarmInfo{alarm(1, "Früh", testNow.Add(-time.Hour))}}

	_, err := newController(alarms, &mockMarkers{}).SkipNext(context.Background())
	if !errors.Is(err, ErrNoUpcomingAlarm) {
		t.Fatalf("err = %v, want ErrNoUpcomingAlarm", err)
	}
}

func TestCheckAndProcess_OneShot(t *testing.T) {
	markers := &mockMarkers{marker: &domain.SkipMarker{AlarmID: 7, SetAt: testNow}}
	c := newController(&mockAlarms{}, markers)

	// Firing the targeted alarm consumes and clears the marker.
	if got := c.CheckAndProcess(context.Background(), 7); got != domain.AlarmSkipped {
		t.Fatalf("first fire = %v, want ALARM_SKIPPED", got)
	}
	if markers.marker != nil {
		t.Fatal("marker not cleared after consumption")
	}

	// A re-delivered fire for the same alarm executes normally.
	if got := c.CheckAndProcess(context.Background(), 7); got != domain.AlarmExecuted {
		t.Fatalf("second fire = %v, want ALARM_EXECUTED", got)
	}
}

func TestCheckAndProcess_OtherAlarmLeavesMarker(t *testing.T) {
	markers := &mockMarkers{marker: &domain.SkipMarker{AlarmID: 7, SetAt: testNow}}
	c := newController(&mockAlarms{}, markers)

	if got := c.CheckAndProcess(context.Background(), 8); got != domain.AlarmExecuted {
		t.Fatalf("fire for other alarm = %v, want ALARM_EXECUTED", got)
	}
	if markers.marker == nil || markers.marker.AlarmID != 7 {
		t.Errorf("marker = %+v, want untouched marker for alarm 7", markers.marker)
	}
}

func TestCheckAndProcess_FailsOpenOnReadError(t *testing.T) {
	markers := &mockMarkers{getErr: errors.New("disk error")}
	c := newController(&mockAlarms{}, markers)

	if got := c.CheckAndProcess(context.Background(), 7); got != domain.AlarmExecuted {
		t.Fatalf("decision on storage error = %v, want fail-open ALARM_EXECUTED", got)
	}
}

func TestCancelSkip(t *testing.T) {
	markers := &mockMarkers{marker: &domain.SkipMarker{AlarmID: 7, SetAt: testNow}}
	c := newController(&mockAlarms{}, markers)

	if err := c.CancelSkip(context.Background()); err != nil {
		t.Fatalf("CancelSkip failed: %v", err)
	}
	if markers.marker != nil {
		t.Error("marker survived cancellation")
	}
}
