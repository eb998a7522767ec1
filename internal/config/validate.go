package config

import (
	"fmt"
	"time"

	"shiftwake/internal/maintenance"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	switch cfg.DatabaseDriver {
	case "sqlite":
		if cfg.DatabasePath == "" {
			errs = append(errs, ValidationError{
				Field:   "DATABASE_PATH",
				Message: "required when DATABASE_DRIVER is 'sqlite'",
			})
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "DATABASE_URL",
				Message: "required when DATABASE_DRIVER is 'postgres'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "DATABASE_DRIVER",
			Message: fmt.Sprintf("must be 'sqlite' or 'postgres', got %q", cfg.DatabaseDriver),
		})
	}

	if cfg.TriggerURL == "" {
		errs = append(errs, ValidationError{
			Field:   "TRIGGER_URL",
			Message: "required",
		})
	}
	if cfg.TriggerTimeoutStr != "" {
		if d, err := time.ParseDuration(cfg.TriggerTimeoutStr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "TRIGGER_TIMEOUT",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "TRIGGER_TIMEOUT",
				Message: "must be positive",
			})
		}
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "TIMEZONE",
				Message: fmt.Sprintf("unknown timezone: %v", err),
			})
		}
	}

	if _, err := maintenance.ParseSchedule(cfg.RefreshSchedule, cfg.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "REFRESH_SCHEDULE",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if len(cfg.CalendarIDList()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "CALENDAR_IDS",
			Message: "at least one calendar id is required",
		})
	}

	if cfg.AnalyticsEnabled {
		if cfg.RedisAddr == "" {
			errs = append(errs, ValidationError{
				Field:   "REDIS_ADDR",
				Message: "required when ANALYTICS_ENABLED is true",
			})
		}
		if cfg.AnalyticsRetention < cfg.AnalyticsWindow {
			errs = append(errs, ValidationError{
				Field:   "ANALYTICS_RETENTION",
				Message: "must be >= ANALYTICS_WINDOW",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
