package api

import (
	"testing"

	"shiftwake/internal/domain"
)

func validDefinition() ShiftDefinitionRequest {
	return ShiftDefinitionRequest{
		ID:        "early",
		Name:      "Frühschicht",
		Keywords:  []string{"früh"},
		AlarmTime: "04:30",
		Enabled:   true,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConfigRequest)
		wantErr bool
	}{
		{"valid", func(r *ConfigRequest) {}, false},
		{"no definitions", func(r *ConfigRequest) { r.Definitions = nil }, true},
		{"negative lookahead", func(r *ConfigRequest) { r.LookaheadDays = -1 }, true},
		{"blank id", func(r *ConfigRequest) { r.Definitions[0].ID = "  " }, true},
		{"blank name", func(r *ConfigRequest) { r.Definitions[0].Name = "" }, true},
		{"only blank keywords", func(r *ConfigRequest) { r.Definitions[0].Keywords = []string{"", "  "} }, true},
		{"bad alarm time", func(r *ConfigRequest) { r.Definitions[0].AlarmTime = "25:00" }, true},
		{"duplicate id", func(r *ConfigRequest) {
			r.Definitions = append(r.Definitions, validDefinition())
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ConfigRequest{
				AutoAlarmEnabled: true,
				LookaheadDays:    7,
				Definitions:      []ShiftDefinitionRequest{validDefinition()},
			}
			tt.mutate(&req)
			_, err := validateConfig(req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_Converts(t *testing.T) {
	req := ConfigRequest{
		AutoAlarmEnabled: true,
		LookaheadDays:    7,
		Definitions:      []ShiftDefinitionRequest{validDefinition()},
	}
	config, err := validateConfig(req)
	if err != nil {
		t.Fatal(err)
	}
	if !config.AutoAlarmEnabled || config.LookaheadDays != 7 {
		t.Errorf("config = %+v", config)
	}
	want := domain.TimeOfDay{Hour: 4, Minute: 30}
	if config.Definitions[0].AlarmTime != want {
		t.Errorf("alarm time = %v, want %v", config.Definitions[0].AlarmTime, want)
	}
}

func TestValidateRecoveryReason(t *testing.T) {
	for _, reason := range []string{domain.ReasonBootCompleted, domain.ReasonAppUpdated, domain.ReasonPackageReplaced} {
		if err := validateRecoveryReason(reason); err != nil {
			t.Errorf("validateRecoveryReason(%q) = %v, want nil", reason, err)
		}
	}
	if err := validateRecoveryReason(""); err == nil {
		t.Error("empty reason accepted")
	}
	if err := validateRecoveryReason("COFFEE_BREAK"); err == nil {
		t.Error("unknown reason accepted")
	}
}
