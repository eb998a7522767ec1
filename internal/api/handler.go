// Package api is the HTTP admin surface: alarm inspection, manual refresh,
// skip control, shift configuration, and simulated recovery signals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shiftwake/internal/domain"
	"shiftwake/internal/skip"
)

// AlarmReader lists the stored alarm set.
type AlarmReader interface {
	ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error)
}

// AlarmManager deletes alarms through the lifecycle coordinator so device
// timers are cancelled together with the rows.
type AlarmManager interface {
	DeleteAlarm(ctx context.Context, id int32) error
	DeleteAllAlarms(ctx context.Context) error
}

// Refresher runs one refresh cycle on demand.
type Refresher interface {
	RunNow(ctx context.Context) error
}

// Skipper arms and disarms the one-shot skip.
type Skipper interface {
	SkipNext(ctx context.Context) (domain.SkipResult, error)
	CancelSkip(ctx context.Context) error
}

// ConfigRegistry reads and writes the shift configuration.
type ConfigRegistry interface {
	Get(ctx context.Context) (domain.ShiftConfig, error)
	Save(ctx context.Context, config domain.ShiftConfig) error
}

// RecoveryRunner handles a simulated boot/update signal.
type RecoveryRunner interface {
	HandleSignal(ctx context.Context, reason string) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	alarms   AlarmReader
	manager  AlarmManager
	refresh  Refresher
	skipper  Skipper
	registry ConfigRegistry
	recovery RecoveryRunner
	db       HealthChecker
}

func NewHandler(alarms AlarmReader, manager AlarmManager, refresh Refresher, skipper Skipper, registry ConfigRegistry) *Handler {
	return &Handler{
		alarms:   alarms,
		manager:  manager,
		refresh:  refresh,
		skipper:  skipper,
		registry: registry,
	}
}

// WithRecovery enables the POST /recovery endpoint.
func (h *Handler) WithRecovery(recovery RecoveryRunner) *Handler {
	h.recovery = recovery
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/alarms" && r.Method == http.MethodGet:
		h.listAlarms(w, r)

	case path == "/alarms" && r.Method == http.MethodDelete:
		h.deleteAllAlarms(w, r)

	case strings.HasPrefix(path, "/alarms/") && r.Method == http.MethodDelete:
		h.deleteAlarm(w, r)

	case path == "/refresh" && r.Method == http.MethodPost:
		h.runRefresh(w, r)

	case path == "/skip" && r.Method == http.MethodPost:
		h.skipNext(w, r)

	case path == "/skip" && r.Method == http.MethodDelete:
		h.cancelSkip(w, r)

	case path == "/config" && r.Method == http.MethodGet:
		h.getConfig(w, r)

	case path == "/config" && r.Method == http.MethodPut:
		h.putConfig(w, r)

	case path == "/recovery" && r.Method == http.MethodPost:
		h.triggerRecovery(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.alarms.ListAlarms(r.Context())
	if err != nil {
		log.Printf("api: list alarms error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list alarms")
		return
	}

	resp := ListAlarmsResponse{Alarms: make([]AlarmResponse, len(alarms))}
	for i, alarm := range alarms {
		resp.Alarms[i] = AlarmResponse{
			ID:            alarm.ID,
			EventID:       alarm.EventID,
			ShiftID:       alarm.ShiftID,
			ShiftName:     alarm.ShiftName,
			TriggerAt:     alarm.TriggerAt.UTC().Format(time.RFC3339),
			FormattedTime: alarm.FormattedTime,
			Active:        alarm.Active,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteAllAlarms(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteAllAlarms(r.Context()); err != nil {
		log.Printf("api: delete all alarms error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete alarms")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAlarm(w http.ResponseWriter, r *http.Request) {
	// Extract alarm ID from path: /alarms/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "alarms" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alarm id")
		return
	}

	if err := h.manager.DeleteAlarm(r.Context(), int32(id)); err != nil {
		log.Printf("api: delete alarm %d error: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete alarm")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresh.RunNow(r.Context()); err != nil {
		log.Printf("api: manual refresh error: %v", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	alarms, err := h.alarms.ListAlarms(r.Context())
	if err != nil {
		// The refresh itself succeeded; report that even if the count read failed.
		writeJSON(w, http.StatusOK, RefreshResponse{AlarmsCreated: -1})
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{AlarmsCreated: len(alarms)})
}

func (h *Handler) skipNext(w http.ResponseWriter, r *http.Request) {
	result, err := h.skipper.SkipNext(r.Context())
	if err != nil {
		if errors.Is(err, skip.ErrNoUpcomingAlarm) {
			writeError(w, http.StatusConflict, "no upcoming alarm to skip")
			return
		}
		log.Printf("api: skip next error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to arm skip")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) cancelSkip(w http.ResponseWriter, r *http.Request) {
	if err := h.skipper.CancelSkip(r.Context()); err != nil {
		log.Printf("api: cancel skip error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel skip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	config, err := h.registry.Get(r.Context())
	if err != nil {
		log.Printf("api: get config error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}

	resp := ConfigResponse{
		AutoAlarmEnabled: config.AutoAlarmEnabled,
		LookaheadDays:    config.LookaheadDays,
		Definitions:      make([]ShiftDefinitionRequest, len(config.Definitions)),
	}
	for i, def := range config.Definitions {
		resp.Definitions[i] = ShiftDefinitionRequest{
			ID:        def.ID,
			Name:      def.Name,
			Keywords:  def.Keywords,
			AlarmTime: def.AlarmTime.String(),
			Enabled:   def.Enabled,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	config, err := validateConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Save(r.Context(), config); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		log.Printf("api: save config error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}

	// The new configuration takes effect on the next refresh; trigger one
	// now so the alarm set follows immediately.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.refresh.RunNow(ctx); err != nil {
			log.Printf("api: post-config refresh failed: %v", err)
		}
	}()

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) triggerRecovery(w http.ResponseWriter, r *http.Request) {
	if h.recovery == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validateRecoveryReason(req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Recovery settles and retries for tens of seconds; run it detached.
	go func() {
		if err := h.recovery.HandleSignal(context.Background(), req.Reason); err != nil {
			log.Printf("api: recovery signal %s failed: %v", req.Reason, err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
