package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed shift definition or config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StorageError wraps a persistence read/write failure.
type StorageError struct {
	Op  string // e.g. "insert alarm", "read skip marker"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SchedulingError wraps a device-scheduler failure for a single alarm id.
type SchedulingError struct {
	AlarmID int32
	Err     error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule alarm %d: %v", e.AlarmID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// CalendarFetchError wraps a calendar collaborator failure. Auth failures
// set Unauthorized; either way the core treats it as an absence of events.
type CalendarFetchError struct {
	Unauthorized bool
	Err          error
}

func (e *CalendarFetchError) Error() string {
	if e.Unauthorized {
		return fmt.Sprintf("calendar fetch: unauthorized: %v", e.Err)
	}
	return fmt.Sprintf("calendar fetch: %v", e.Err)
}

func (e *CalendarFetchError) Unwrap() error { return e.Err }

// BatchError aggregates per-item failures from a partial-failure-tolerant
// batch operation. The batch itself still succeeded for the remaining items.
type BatchError struct {
	Op     string
	Errors []error
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: 1 item failed: %v", e.Op, e.Errors[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d items failed:", e.Op, len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// OrNil returns the aggregate, or nil when no item failed.
func (e *BatchError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}
