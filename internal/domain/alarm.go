package domain

import (
	"hash/fnv"
	"time"
)

// AlarmInfo is one armed wake alarm. Its ID is derived from the calendar
// event ID and doubles as the device scheduler key; its lifetime spans from
// creation until the next full batch recompute clears it.
type AlarmInfo struct {
	ID            int32
	EventID       string
	ShiftID       string
	ShiftName     string
	TriggerAt     time.Time
	FormattedTime string
	Active        bool
	CreatedAt     time.Time
}

// AlarmIDForEvent derives the alarm storage/scheduler id from the opaque
// calendar event id. FNV-1a 32-bit, masked positive. Not collision-proof:
// two distinct event ids can map to the same alarm id, in which case the
// later one overwrites the earlier. Kept as-is; see DESIGN.md.
func AlarmIDForEvent(eventID string) int32 {
	h := fnv.New32a()
	h.Write([]byte(eventID))
	return int32(h.Sum32() & 0x7fffffff)
}

// DisplayTimeLayout is the layout used for an alarm's human-facing time.
const DisplayTimeLayout = "02.01.2006 15:04"

// FormatTriggerTime renders a trigger time for display and fire payloads.
func FormatTriggerTime(t time.Time) string {
	return t.Format(DisplayTimeLayout)
}
