package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields successive refresh times.
type Schedule interface {
	Next(after time.Time) time.Time
}

// ParseSchedule parses a five-field cron expression evaluated in the given
// timezone. The timezone matters: shift alarms follow the worker's wall
// clock, so the refresh cadence should too.
func ParseSchedule(expression, timezone string) (Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expression, err)
	}

	loc := time.Local
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}

	return &cronSchedule{sched: sched, loc: loc}, nil
}

type cronSchedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *cronSchedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}
