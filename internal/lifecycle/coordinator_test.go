package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shiftwake/internal/domain"
	"shiftwake/internal/recognize"
)

type mockAlarmStore struct {
	mu        sync.Mutex
	alarms    map[int32]domain.AlarmInfo
	failIDs   map[int32]bool // InsertAlarm fails for these ids
	ops       []string
	listErr   error
	insertGate chan struct{} // when set, InsertAlarm blocks until closed
}

func newMockAlarmStore() *mockAlarmStore {
	return &mockAlarmStore{alarms: make(map[int32]domain.AlarmInfo), failIDs: make(map[int32]bool)}
}

func (s *mockAlarmStore) InsertAlarm(ctx context.Context, alarm domain.AlarmInfo) error {
	if s.insertGate != nil {
		<-s.insertGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[alarm.ID] {
		return errors.New("disk full")
	}
	s.alarms[alarm.ID] = alarm
	s.ops = append(s.ops, "insert")
	return nil
}

func (s *mockAlarmStore) DeleteAlarm(ctx context.Context, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, id)
	s.ops = append(s.ops, "delete")
	return nil
}

func (s *mockAlarmStore) DeleteAllAlarms(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = make(map[int32]domain.AlarmInfo)
	s.ops = append(s.ops, "delete_all")
	return nil
}

func (s *mockAlarmStore) ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.AlarmInfo, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a)
	}
	return out, nil
}

func (s *mockAlarmStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alarms)
}

type mockDevice struct {
	mu        sync.Mutex
	scheduled map[int32]time.Time
	cancelled []int32
	ops       []string
	failIDs   map[int32]bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{scheduled: make(map[int32]time.Time), failIDs: make(map[int32]bool)}
}

func (d *mockDevice) Schedule(id int32, triggerAt time.Time, payload domain.FirePayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failIDs[id] {
		return &domain.SchedulingError{AlarmID: id, Err: errors.New("device rejected")}
	}
	d.scheduled[id] = triggerAt
	d.ops = append(d.ops, "schedule")
	return nil
}

func (d *mockDevice) Cancel(id int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.scheduled, id)
	d.cancelled = append(d.cancelled, id)
	d.ops = append(d.ops, "cancel")
}

type staticConfig struct {
	cfg domain.ShiftConfig
	err error
}

func (p staticConfig) Get(ctx context.Context) (domain.ShiftConfig, error) {
	return p.cfg, p.err
}

func testConfig() domain.ShiftConfig {
	return domain.ShiftConfig{
		AutoAlarmEnabled: true,
		LookaheadDays:    14,
		Definitions: []domain.ShiftDefinition{
			{ID: "frueh", Name: "Frühschicht", Keywords: []string{"früh"}, AlarmTime: domain.TimeOfDay{Hour: 5, Minute: 30}, Enabled: true},
			{ID: "nacht", Name: "Nachtschicht", Keywords: []string{"nacht"}, AlarmTime: domain.TimeOfDay{Hour: 21, Minute: 0}, Enabled: true},
		},
	}
}

func futureEvent(id, title string, start time.Time) domain.CalendarEvent {
	return domain.CalendarEvent{ID: id, Title: title, Start: start, End: start.Add(8 * time.Hour)}
}

func newCoordinator(store *mockAlarmStore, device *mockDevice, cfg domain.ShiftConfig) *Coordinator {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(store, recognize.New(), device, staticConfig{cfg: cfg}).
		WithClock(func() time.Time { return base })
}

func TestCreateAlarmsFromEvents_Basic(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	start := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", start),
	})
	if err != nil {
		t.Fatalf("CreateAlarmsFromEvents failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d alarms, want 1", len(created))
	}

	alarm := created[0]
	if alarm.ID != domain.AlarmIDForEvent("ev-1") {
		t.Errorf("alarm id = %d, want derived from event id", alarm.ID)
	}
	want := time.Date(2026, 3, 9, 5, 30, 0, 0, time.UTC)
	if !alarm.TriggerAt.Equal(want) {
		t.Errorf("TriggerAt = %v, want %v", alarm.TriggerAt, want)
	}
	if alarm.TriggerAt.After(start) {
		t.Error("invariant violated: trigger after event start")
	}
	if _, ok := device.scheduled[alarm.ID]; !ok {
		t.Error("expected device timer for the created alarm")
	}
}

func TestCreateAlarmsFromEvents_Idempotent(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	events := []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
		futureEvent("ev-2", "Nachtschicht", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)),
	}

	first, err := c.CreateAlarmsFromEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	second, err := c.CreateAlarmsFromEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("batches created %d then %d alarms, want 2 and 2", len(first), len(second))
	}
	if store.count() != 2 {
		t.Errorf("store holds %d alarms after two identical batches, want 2", store.count())
	}
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].TriggerAt.Equal(second[i].TriggerAt) {
			t.Errorf("batch not idempotent: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestCreateAlarmsFromEvents_ReplacesOldSet(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	// Pre-existing alarm from an earlier batch, with an armed timer.
	stale := domain.AlarmInfo{ID: 42, EventID: "old", TriggerAt: time.Date(2026, 3, 5, 5, 30, 0, 0, time.UTC)}
	store.alarms[stale.ID] = stale
	device.scheduled[stale.ID] = stale.TriggerAt

	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if len(device.cancelled) == 0 || device.cancelled[0] != 42 {
		t.Errorf("expected stale timer 42 cancelled first, cancelled=%v", device.cancelled)
	}
	if store.count() != 1 {
		t.Errorf("store holds %d alarms, want only the new set", store.count())
	}
	if _, ok := store.alarms[42]; ok {
		t.Error("stale alarm row survived the clear")
	}
	if len(created) != 1 {
		t.Errorf("created = %d, want 1", len(created))
	}
}

func TestCreateAlarmsFromEvents_SingleFlight(t *testing.T) {
	store := newMockAlarmStore()
	store.insertGate = make(chan struct{})
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	events := []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.CreateAlarmsFromEvents(context.Background(), events); err != nil {
			t.Errorf("in-flight batch failed: %v", err)
		}
	}()

	// Wait until the first batch is blocked inside the store.
	deadline := time.Now().Add(2 * time.Second)
	for !c.busy.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !c.busy.Load() {
		t.Fatal("first batch never started")
	}

	got, err := c.CreateAlarmsFromEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("concurrent call returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("concurrent call created %d alarms, want empty no-op success", len(got))
	}

	close(store.insertGate)
	<-done

	// The guard is released after the batch terminates.
	if c.busy.Load() {
		t.Error("single-flight guard still held after batch completion")
	}
}

func TestCreateAlarmsFromEvents_PartialFailureContinues(t *testing.T) {
	store := newMockAlarmStore()
	store.failIDs[domain.AlarmIDForEvent("ev-1")] = true
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
		futureEvent("ev-2", "Nachtschicht", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed outright: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d, want the one surviving item", len(created))
	}
	if created[0].EventID != "ev-2" {
		t.Errorf("surviving alarm = %s, want ev-2", created[0].EventID)
	}
}

func TestCreateAlarmsFromEvents_SchedulingFailureKeepsRow(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	device.failIDs[domain.AlarmIDForEvent("ev-1")] = true
	c := newCoordinator(store, device, testConfig())

	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	// The row is kept so recovery can re-arm it later.
	if len(created) != 1 || store.count() != 1 {
		t.Fatalf("created=%d stored=%d, want row kept despite scheduling failure", len(created), store.count())
	}
	if len(device.scheduled) != 0 {
		t.Errorf("device has %d timers, want 0", len(device.scheduled))
	}
}

func TestCreateAlarmsFromEvents_AutoAlarmDisabledClearsSet(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAlarmEnabled = false

	store := newMockAlarmStore()
	store.alarms[7] = domain.AlarmInfo{ID: 7, EventID: "old"}
	device := newMockDevice()
	c := newCoordinator(store, device, cfg)

	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %d with auto alarm disabled, want 0", len(created))
	}
	if store.count() != 0 {
		t.Errorf("old set not cleared: %d rows", store.count())
	}
}

func TestCreateAlarmsFromEvents_PastAlarmNotScheduled(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	// Clock is fixed at 2026-03-01 12:00; this shift's alarm is in the past.
	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("ev-1", "Frühschicht", time.Date(2026, 2, 20, 6, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d, want persisted row", len(created))
	}
	if len(device.scheduled) != 0 {
		t.Errorf("past alarm was handed to the device scheduler")
	}
}

// "costarring" and "liquid" collide under FNV-1a 32; the later item must
// overwrite the earlier one, silently from the store's point of view.
func TestCreateAlarmsFromEvents_HashCollisionOverwrites(t *testing.T) {
	if domain.AlarmIDForEvent("costarring") != domain.AlarmIDForEvent("liquid") {
		t.Skip("expected FNV-1a 32 collision pair no longer collides")
	}

	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	created, err := c.CreateAlarmsFromEvents(context.Background(), []domain.CalendarEvent{
		futureEvent("costarring", "Frühschicht", time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)),
		futureEvent("liquid", "Nachtschicht", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want both items attempted", len(created))
	}
	if store.count() != 1 {
		t.Fatalf("store holds %d rows, want 1 after collision overwrite", store.count())
	}
	stored := store.alarms[domain.AlarmIDForEvent("liquid")]
	if stored.EventID != "liquid" {
		t.Errorf("stored event = %s, want the later item to win", stored.EventID)
	}
}

func TestDeleteAlarm_CancelsTimerBeforeRow(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	store.alarms[9] = domain.AlarmInfo{ID: 9}
	device.scheduled[9] = time.Now().Add(time.Hour)

	if err := c.DeleteAlarm(context.Background(), 9); err != nil {
		t.Fatalf("DeleteAlarm failed: %v", err)
	}
	if len(device.ops) == 0 || device.ops[0] != "cancel" {
		t.Errorf("device ops = %v, want cancel first", device.ops)
	}
	if store.count() != 0 {
		t.Errorf("row not deleted")
	}
}

func TestScheduleSystemAlarm_RearmsWithoutRecompute(t *testing.T) {
	store := newMockAlarmStore()
	device := newMockDevice()
	c := newCoordinator(store, device, testConfig())

	alarm := domain.AlarmInfo{
		ID:            33,
		ShiftID:       "frueh",
		ShiftName:     "Frühschicht",
		TriggerAt:     time.Date(2026, 3, 9, 5, 30, 0, 0, time.UTC),
		FormattedTime: "09.03.2026 05:30",
	}
	if err := c.ScheduleSystemAlarm(context.Background(), alarm); err != nil {
		t.Fatalf("ScheduleSystemAlarm failed: %v", err)
	}
	if _, ok := device.scheduled[33]; !ok {
		t.Error("expected device timer armed")
	}
	if store.count() != 0 {
		t.Error("re-arming must not touch storage")
	}
}
