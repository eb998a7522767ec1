package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"shiftwake/internal/domain"
	"shiftwake/internal/recovery"
)

// Config holds all configuration for the shiftwake application.
// Values are loaded from environment variables; see printUsage() in the
// serve command for the full list.
type Config struct {
	// DatabaseDriver: "sqlite" (default) or "postgres".
	DatabaseDriver string `json:"database_driver"`
	DatabaseURL    string `json:"database_url"`
	DatabasePath   string `json:"database_path"`

	RedisAddr string `json:"redis_addr,omitempty"`
	HTTPAddr  string `json:"http_addr"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`
	FireDrainTimeout       time.Duration `json:"-"`
	FireDrainTimeoutStr    string        `json:"fire_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsAddr    string `json:"metrics_addr"`
	MetricsPath    string `json:"metrics_path"`

	// TriggerURL is the downstream webhook invoked when an alarm fires.
	TriggerURL        string        `json:"trigger_url"`
	TriggerSecret     string        `json:"trigger_secret"`
	TriggerTimeout    time.Duration `json:"-"`
	TriggerTimeoutStr string        `json:"trigger_timeout"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	FireBusBufferSize int `json:"firebus_buffer_size"`

	// RefreshSchedule is a 5-field cron expression driving the periodic
	// calendar recompute.
	RefreshSchedule string `json:"refresh_schedule"`
	Timezone        string `json:"timezone"`

	// CalendarIDs names the calendars to scan, comma separated.
	CalendarIDs string `json:"calendar_ids"`
	// CalendarICSURLs maps calendar ids to ICS feed URLs as
	// "id=url,id=url" pairs.
	CalendarICSURLs string `json:"calendar_ics_urls"`

	ShiftSeedPath string `json:"shift_seed_path"`

	RecoverySettleDelay         time.Duration `json:"-"`
	RecoverySettleDelayStr      string        `json:"recovery_settle_delay"`
	RecoveryMaxAttempts         int           `json:"recovery_max_attempts"`
	RecoveryAttemptDelay        time.Duration `json:"-"`
	RecoveryAttemptDelayStr     string        `json:"recovery_attempt_delay"`
	RecoveryMinRestored         int           `json:"recovery_min_restored"`
	RecoveryHealthCheckDelay    time.Duration `json:"-"`
	RecoveryHealthCheckDelayStr string        `json:"recovery_health_check_delay"`

	AnalyticsEnabled      bool          `json:"analytics_enabled"`
	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseDriver:              os.Getenv("DATABASE_DRIVER"),
		DatabaseURL:                 os.Getenv("DATABASE_URL"),
		DatabasePath:                os.Getenv("DATABASE_PATH"),
		RedisAddr:                   os.Getenv("REDIS_ADDR"),
		HTTPAddr:                    os.Getenv("HTTP_ADDR"),
		DBOpTimeoutStr:              os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:        os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:        os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:      os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		FireDrainTimeoutStr:         os.Getenv("FIRE_DRAIN_TIMEOUT"),
		MetricsEnabled:              os.Getenv("METRICS_ENABLED") == "true",
		MetricsAddr:                 os.Getenv("METRICS_ADDR"),
		MetricsPath:                 os.Getenv("METRICS_PATH"),
		TriggerURL:                  os.Getenv("TRIGGER_URL"),
		TriggerSecret:               os.Getenv("TRIGGER_SECRET"),
		TriggerTimeoutStr:           os.Getenv("TRIGGER_TIMEOUT"),
		CircuitBreakerCooldownStr:   os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		RefreshSchedule:             os.Getenv("REFRESH_SCHEDULE"),
		Timezone:                    os.Getenv("TIMEZONE"),
		CalendarIDs:                 os.Getenv("CALENDAR_IDS"),
		CalendarICSURLs:             os.Getenv("CALENDAR_ICS_URLS"),
		ShiftSeedPath:               os.Getenv("SHIFT_SEED_PATH"),
		RecoverySettleDelayStr:      os.Getenv("RECOVERY_SETTLE_DELAY"),
		RecoveryAttemptDelayStr:     os.Getenv("RECOVERY_ATTEMPT_DELAY"),
		RecoveryHealthCheckDelayStr: os.Getenv("RECOVERY_HEALTH_CHECK_DELAY"),
		AnalyticsEnabled:            os.Getenv("ANALYTICS_ENABLED") == "true",
		AnalyticsWindowStr:          os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:       os.Getenv("ANALYTICS_RETENTION"),
	}

	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "sqlite"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "shiftwake.db"
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	if bufStr := os.Getenv("FIREBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.FireBusBufferSize = n
		} else {
			log.Printf("config: invalid FIREBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.FireBusBufferSize == 0 {
		cfg.FireBusBufferSize = 100
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	if attemptsStr := os.Getenv("RECOVERY_MAX_ATTEMPTS"); attemptsStr != "" {
		if n, err := parseInt(attemptsStr); err == nil && n > 0 {
			cfg.RecoveryMaxAttempts = n
		} else {
			log.Printf("config: invalid RECOVERY_MAX_ATTEMPTS %q (must be a positive integer), using default 3", attemptsStr)
		}
	}
	if cfg.RecoveryMaxAttempts == 0 {
		cfg.RecoveryMaxAttempts = 3
	}

	if minStr := os.Getenv("RECOVERY_MIN_RESTORED"); minStr != "" {
		if n, err := parseInt(minStr); err == nil {
			cfg.RecoveryMinRestored = n
		}
	}
	if cfg.RecoveryMinRestored == 0 && os.Getenv("RECOVERY_MIN_RESTORED") == "" {
		cfg.RecoveryMinRestored = 1
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.FireDrainTimeoutStr == "" {
		cfg.FireDrainTimeoutStr = "30s"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.TriggerTimeoutStr == "" {
		cfg.TriggerTimeoutStr = "10s"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = "*/30 * * * *"
	}
	if cfg.CalendarIDs == "" {
		cfg.CalendarIDs = "primary"
	}
	if cfg.RecoverySettleDelayStr == "" {
		cfg.RecoverySettleDelayStr = "5s"
	}
	if cfg.RecoveryAttemptDelayStr == "" {
		cfg.RecoveryAttemptDelayStr = "10s"
	}
	if cfg.RecoveryHealthCheckDelayStr == "" {
		cfg.RecoveryHealthCheckDelayStr = "2m"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "24h"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "720h"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.FireDrainTimeoutStr); err == nil {
		cfg.FireDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.TriggerTimeoutStr); err == nil {
		cfg.TriggerTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.RecoverySettleDelayStr); err == nil {
		cfg.RecoverySettleDelay = d
	}
	if d, err := time.ParseDuration(cfg.RecoveryAttemptDelayStr); err == nil {
		cfg.RecoveryAttemptDelay = d
	}
	if d, err := time.ParseDuration(cfg.RecoveryHealthCheckDelayStr); err == nil {
		cfg.RecoveryHealthCheckDelay = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsWindowStr); err == nil {
		cfg.AnalyticsWindow = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}

	return cfg
}

// TriggerConfig converts the trigger settings into the domain type.
func (c Config) TriggerConfig() domain.TriggerConfig {
	return domain.TriggerConfig{
		WebhookURL: c.TriggerURL,
		Secret:     c.TriggerSecret,
		Timeout:    c.TriggerTimeout,
	}
}

// AnalyticsConfig converts the analytics settings into the domain type.
func (c Config) AnalyticsConfig() domain.AnalyticsConfig {
	return domain.AnalyticsConfig{
		Enabled:   c.AnalyticsEnabled,
		Window:    c.AnalyticsWindow,
		Retention: c.AnalyticsRetention,
	}
}

// RecoveryConfig converts the recovery settings into the coordinator's
// tuning struct.
func (c Config) RecoveryConfig() recovery.Config {
	return recovery.Config{
		SettleDelay:      c.RecoverySettleDelay,
		MaxAttempts:      c.RecoveryMaxAttempts,
		AttemptDelay:     c.RecoveryAttemptDelay,
		MinRestored:      c.RecoveryMinRestored,
		HealthCheckDelay: c.RecoveryHealthCheckDelay,
	}
}

// CalendarIDList splits CalendarIDs into its entries.
func (c Config) CalendarIDList() []string {
	var ids []string
	for _, id := range strings.Split(c.CalendarIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ICSURLMap parses CalendarICSURLs into a calendar-id -> feed-URL map.
// Malformed pairs are skipped with a warning.
func (c Config) ICSURLMap() map[string]string {
	urls := make(map[string]string)
	if c.CalendarICSURLs == "" {
		return urls
	}
	for _, pair := range strings.Split(c.CalendarICSURLs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, url, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(url) == "" {
			log.Printf("config: skipping malformed CALENDAR_ICS_URLS pair %q (want id=url)", pair)
			continue
		}
		urls[strings.TrimSpace(id)] = strings.TrimSpace(url)
	}
	return urls
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseDriver           string `json:"database_driver"`
		DatabaseURL              string `json:"database_url,omitempty"`
		DatabasePath             string `json:"database_path,omitempty"`
		RedisAddr                string `json:"redis_addr,omitempty"`
		HTTPAddr                 string `json:"http_addr"`
		DBOpTimeout              string `json:"db_op_timeout"`
		DBMaxOpenConns           int    `json:"db_max_open_conns"`
		DBMaxIdleConns           int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime        string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime        string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout      string `json:"http_shutdown_timeout"`
		FireDrainTimeout         string `json:"fire_drain_timeout"`
		MetricsEnabled           bool   `json:"metrics_enabled"`
		MetricsAddr              string `json:"metrics_addr"`
		MetricsPath              string `json:"metrics_path"`
		TriggerURL               string `json:"trigger_url"`
		TriggerSecret            string `json:"trigger_secret"`
		TriggerTimeout           string `json:"trigger_timeout"`
		CircuitBreakerThreshold  int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown   string `json:"circuit_breaker_cooldown"`
		FireBusBufferSize        int    `json:"firebus_buffer_size"`
		RefreshSchedule          string `json:"refresh_schedule"`
		Timezone                 string `json:"timezone,omitempty"`
		CalendarIDs              string `json:"calendar_ids"`
		CalendarICSURLs          string `json:"calendar_ics_urls,omitempty"`
		ShiftSeedPath            string `json:"shift_seed_path,omitempty"`
		RecoverySettleDelay      string `json:"recovery_settle_delay"`
		RecoveryMaxAttempts      int    `json:"recovery_max_attempts"`
		RecoveryAttemptDelay     string `json:"recovery_attempt_delay"`
		RecoveryMinRestored      int    `json:"recovery_min_restored"`
		RecoveryHealthCheckDelay string `json:"recovery_health_check_delay"`
		AnalyticsEnabled         bool   `json:"analytics_enabled"`
		AnalyticsWindow          string `json:"analytics_window"`
		AnalyticsRetention       string `json:"analytics_retention"`
	}{
		DatabaseDriver:           c.DatabaseDriver,
		DatabaseURL:              maskSecret(c.DatabaseURL),
		DatabasePath:             c.DatabasePath,
		RedisAddr:                c.RedisAddr,
		HTTPAddr:                 c.HTTPAddr,
		DBOpTimeout:              c.DBOpTimeoutStr,
		DBMaxOpenConns:           c.DBMaxOpenConns,
		DBMaxIdleConns:           c.DBMaxIdleConns,
		DBConnMaxLifetime:        c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:        c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:      c.HTTPShutdownTimeoutStr,
		FireDrainTimeout:         c.FireDrainTimeoutStr,
		MetricsEnabled:           c.MetricsEnabled,
		MetricsAddr:              c.MetricsAddr,
		MetricsPath:              c.MetricsPath,
		TriggerURL:               c.TriggerURL,
		TriggerSecret:            maskSecret(c.TriggerSecret),
		TriggerTimeout:           c.TriggerTimeoutStr,
		CircuitBreakerThreshold:  c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:   c.CircuitBreakerCooldownStr,
		FireBusBufferSize:        c.FireBusBufferSize,
		RefreshSchedule:          c.RefreshSchedule,
		Timezone:                 c.Timezone,
		CalendarIDs:              c.CalendarIDs,
		CalendarICSURLs:          c.CalendarICSURLs,
		ShiftSeedPath:            c.ShiftSeedPath,
		RecoverySettleDelay:      c.RecoverySettleDelayStr,
		RecoveryMaxAttempts:      c.RecoveryMaxAttempts,
		RecoveryAttemptDelay:     c.RecoveryAttemptDelayStr,
		RecoveryMinRestored:      c.RecoveryMinRestored,
		RecoveryHealthCheckDelay: c.RecoveryHealthCheckDelayStr,
		AnalyticsEnabled:         c.AnalyticsEnabled,
		AnalyticsWindow:          c.AnalyticsWindowStr,
		AnalyticsRetention:       c.AnalyticsRetentionStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
