package api

// ErrorResponse is the JSON envelope for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AlarmResponse is one alarm in API responses.
type AlarmResponse struct {
	ID            int32  `json:"id"`
	EventID       string `json:"event_id"`
	ShiftID       string `json:"shift_id"`
	ShiftName     string `json:"shift_name"`
	TriggerAt     string `json:"trigger_at"`
	FormattedTime string `json:"formatted_time"`
	Active        bool   `json:"active"`
}

// ListAlarmsResponse wraps the GET /alarms response.
type ListAlarmsResponse struct {
	Alarms []AlarmResponse `json:"alarms"`
}

// RefreshResponse reports the result of a manual recompute.
type RefreshResponse struct {
	AlarmsCreated int `json:"alarms_created"`
}

// ShiftDefinitionRequest is one shift definition in a PUT /config body.
type ShiftDefinitionRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Keywords  []string `json:"keywords"`
	AlarmTime string   `json:"alarm_time"`
	Enabled   bool     `json:"enabled"`
}

// ConfigRequest is the PUT /config body.
type ConfigRequest struct {
	Definitions      []ShiftDefinitionRequest `json:"definitions"`
	AutoAlarmEnabled bool                     `json:"auto_alarm_enabled"`
	LookaheadDays    int                      `json:"lookahead_days"`
}

// ConfigResponse mirrors ConfigRequest for GET /config.
type ConfigResponse struct {
	Definitions      []ShiftDefinitionRequest `json:"definitions"`
	AutoAlarmEnabled bool                     `json:"auto_alarm_enabled"`
	LookaheadDays    int                      `json:"lookahead_days"`
}

// RecoveryRequest is the POST /recovery body.
type RecoveryRequest struct {
	Reason string `json:"reason"`
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
