package api

import (
	"errors"
	"fmt"
	"strings"

	"shiftwake/internal/domain"
)

// validateConfig checks a PUT /config body and converts it into a
// domain.ShiftConfig. The registry performs its own validation as well; this
// layer exists to return precise 400 messages before touching storage.
func validateConfig(req ConfigRequest) (domain.ShiftConfig, error) {
	if len(req.Definitions) == 0 {
		return domain.ShiftConfig{}, errors.New("definitions must not be empty")
	}
	if req.LookaheadDays < 0 {
		return domain.ShiftConfig{}, errors.New("lookahead_days must not be negative")
	}

	config := domain.ShiftConfig{
		AutoAlarmEnabled: req.AutoAlarmEnabled,
		LookaheadDays:    req.LookaheadDays,
	}

	seen := make(map[string]struct{}, len(req.Definitions))
	for i, def := range req.Definitions {
		if strings.TrimSpace(def.ID) == "" {
			return domain.ShiftConfig{}, fmt.Errorf("definitions[%d]: id is required", i)
		}
		if _, dup := seen[def.ID]; dup {
			return domain.ShiftConfig{}, fmt.Errorf("definitions[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = struct{}{}

		if strings.TrimSpace(def.Name) == "" {
			return domain.ShiftConfig{}, fmt.Errorf("definitions[%d]: name is required", i)
		}
		keywords := 0
		for _, kw := range def.Keywords {
			if strings.TrimSpace(kw) != "" {
				keywords++
			}
		}
		if keywords == 0 {
			return domain.ShiftConfig{}, fmt.Errorf("definitions[%d]: at least one keyword is required", i)
		}

		alarmTime, err := domain.ParseTimeOfDay(def.AlarmTime)
		if err != nil {
			return domain.ShiftConfig{}, fmt.Errorf("definitions[%d]: %v", i, err)
		}

		config.Definitions = append(config.Definitions, domain.ShiftDefinition{
			ID:        def.ID,
			Name:      def.Name,
			Keywords:  def.Keywords,
			AlarmTime: alarmTime,
			Enabled:   def.Enabled,
		})
	}

	return config, nil
}

// validRecoveryReasons bounds the POST /recovery reason values.
var validRecoveryReasons = map[string]bool{
	domain.ReasonBootCompleted:   true,
	domain.ReasonAppUpdated:      true,
	domain.ReasonPackageReplaced: true,
}

func validateRecoveryReason(reason string) error {
	if reason == "" {
		return errors.New("reason is required")
	}
	if !validRecoveryReasons[reason] {
		return fmt.Errorf("unknown reason %q", reason)
	}
	return nil
}
