// Package sqlite implements the storage collaborators on an embedded SQLite
// database. Intended for single-host deployments where running PostgreSQL is
// not worth it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shiftwake/internal/domain"
	"shiftwake/internal/firing"
	"shiftwake/internal/lifecycle"
	"shiftwake/internal/recovery"
	"shiftwake/internal/registry"
	"shiftwake/internal/skip"
)

const schema = `
CREATE TABLE IF NOT EXISTS alarms (
    id             INTEGER PRIMARY KEY,
    event_id       TEXT NOT NULL,
    shift_id       TEXT NOT NULL,
    shift_name     TEXT NOT NULL,
    trigger_at     TEXT NOT NULL,
    formatted_time TEXT NOT NULL,
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shift_config (
    slot       INTEGER PRIMARY KEY CHECK (slot = 1),
    config     TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skip_marker (
    slot     INTEGER PRIMARY KEY CHECK (slot = 1),
    alarm_id INTEGER NOT NULL,
    set_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cached_events (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    start_at    TEXT NOT NULL,
    end_at      TEXT NOT NULL,
    calendar_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fires (
    id           TEXT PRIMARY KEY,
    alarm_id     INTEGER NOT NULL,
    shift_id     TEXT NOT NULL,
    shift_name   TEXT NOT NULL,
    scheduled_at TEXT NOT NULL,
    fired_at     TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alarms_trigger_at ON alarms (trigger_at);
`

// timeLayout is fixed-width UTC so lexical ordering matches chronological
// ordering and ORDER BY on timestamp columns works without parsing.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the alarm, config, skip, event cache, and fire storage
// interfaces using an embedded SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and bootstraps the
// schema. The single connection avoids SQLITE_BUSY under concurrent writers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PingContext reports database liveness for health checks.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, raw)
}

func (s *Store) InsertAlarm(ctx context.Context, alarm domain.AlarmInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    event_id = excluded.event_id,
		    shift_id = excluded.shift_id,
		    shift_name = excluded.shift_name,
		    trigger_at = excluded.trigger_at,
		    formatted_time = excluded.formatted_time,
		    active = excluded.active,
		    created_at = excluded.created_at`,
		alarm.ID,
		alarm.EventID,
		alarm.ShiftID,
		alarm.ShiftName,
		encodeTime(alarm.TriggerAt),
		alarm.FormattedTime,
		alarm.Active,
		encodeTime(alarm.CreatedAt),
	)
	return err
}

func (s *Store) DeleteAlarm(ctx context.Context, id int32) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteAllAlarms(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms`)
	return err
}

const selectAlarm = `SELECT id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at FROM alarms`

// GetAlarm returns one alarm by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetAlarm(ctx context.Context, id int32) (domain.AlarmInfo, error) {
	row := s.db.QueryRowContext(ctx, selectAlarm+` WHERE id = ?`, id)
	return scanAlarm(row.Scan)
}

func (s *Store) ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error) {
	return s.queryAlarms(ctx, selectAlarm+` ORDER BY trigger_at ASC`)
}

func (s *Store) ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error) {
	return s.queryAlarms(ctx, selectAlarm+` WHERE trigger_at > ? AND active = 1 ORDER BY trigger_at ASC`, encodeTime(after))
}

func scanAlarm(scan func(...any) error) (domain.AlarmInfo, error) {
	var alarm domain.AlarmInfo
	var triggerAt, createdAt string
	err := scan(
		&alarm.ID,
		&alarm.EventID,
		&alarm.ShiftID,
		&alarm.ShiftName,
		&triggerAt,
		&alarm.FormattedTime,
		&alarm.Active,
		&createdAt,
	)
	if err != nil {
		return domain.AlarmInfo{}, err
	}
	if alarm.TriggerAt, err = decodeTime(triggerAt); err != nil {
		return domain.AlarmInfo{}, fmt.Errorf("decode trigger_at: %w", err)
	}
	if alarm.CreatedAt, err = decodeTime(createdAt); err != nil {
		return domain.AlarmInfo{}, fmt.Errorf("decode created_at: %w", err)
	}
	return alarm, nil
}

func (s *Store) queryAlarms(ctx context.Context, query string, args ...any) ([]domain.AlarmInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AlarmInfo
	for rows.Next() {
		alarm, err := scanAlarm(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, alarm)
	}
	return result, rows.Err()
}

func (s *Store) CountAlarms(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM alarms`).Scan(&count)
	return count, err
}

func (s *Store) LoadShiftConfig(ctx context.Context) (domain.ShiftConfig, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM shift_config WHERE slot = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShiftConfig{}, registry.ErrNoConfig
	}
	if err != nil {
		return domain.ShiftConfig{}, err
	}
	var config domain.ShiftConfig
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return domain.ShiftConfig{}, fmt.Errorf("decode shift config: %w", err)
	}
	return config, nil
}

func (s *Store) SaveShiftConfig(ctx context.Context, config domain.ShiftConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode shift config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shift_config (slot, config, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		string(raw), encodeTime(time.Now()))
	return err
}

func (s *Store) GetSkipMarker(ctx context.Context) (domain.SkipMarker, bool, error) {
	var marker domain.SkipMarker
	var setAt string
	err := s.db.QueryRowContext(ctx, `SELECT alarm_id, set_at FROM skip_marker WHERE slot = 1`).
		Scan(&marker.AlarmID, &setAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SkipMarker{}, false, nil
	}
	if err != nil {
		return domain.SkipMarker{}, false, err
	}
	if marker.SetAt, err = decodeTime(setAt); err != nil {
		return domain.SkipMarker{}, false, fmt.Errorf("decode set_at: %w", err)
	}
	return marker, true, nil
}

func (s *Store) SetSkipMarker(ctx context.Context, marker domain.SkipMarker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skip_marker (slot, alarm_id, set_at)
		VALUES (1, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET alarm_id = excluded.alarm_id, set_at = excluded.set_at`,
		marker.AlarmID, encodeTime(marker.SetAt))
	return err
}

func (s *Store) ClearSkipMarker(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM skip_marker WHERE slot = 1`)
	return err
}

func (s *Store) ReplaceCachedEvents(ctx context.Context, events []domain.CalendarEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_events`); err != nil {
		return err
	}
	for _, event := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cached_events (id, title, start_at, end_at, calendar_id)
			VALUES (?, ?, ?, ?, ?)`,
			event.ID, event.Title, encodeTime(event.Start), encodeTime(event.End), event.CalendarID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, start_at, end_at, calendar_id
		FROM cached_events
		ORDER BY start_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CalendarEvent
	for rows.Next() {
		var event domain.CalendarEvent
		var start, end string
		if err := rows.Scan(&event.ID, &event.Title, &start, &end, &event.CalendarID); err != nil {
			return nil, err
		}
		if event.Start, err = decodeTime(start); err != nil {
			return nil, fmt.Errorf("decode start_at: %w", err)
		}
		if event.End, err = decodeTime(end); err != nil {
			return nil, fmt.Errorf("decode end_at: %w", err)
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (s *Store) InsertFire(ctx context.Context, record domain.FireRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fires (id, alarm_id, shift_id, shift_name, scheduled_at, fired_at, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(),
		record.AlarmID,
		record.ShiftID,
		record.ShiftName,
		encodeTime(record.ScheduledAt),
		encodeTime(record.FiredAt),
		string(record.Outcome),
		encodeTime(record.CreatedAt),
	)
	return err
}

// UpdateFireOutcome updates the outcome of a fire record.
// Returns firing.ErrOutcomeFinal if the record is already terminal.
func (s *Store) UpdateFireOutcome(ctx context.Context, id uuid.UUID, outcome domain.FireOutcome) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE fires
		SET outcome = ?
		WHERE id = ?
		  AND outcome NOT IN ('executed', 'skipped', 'failed')`,
		string(outcome), id.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT outcome FROM fires WHERE id = ?`, id.String()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return firing.ErrOutcomeFinal
	}
	return nil
}

// ListRecentFires returns the newest fire records, most recent first.
func (s *Store) ListRecentFires(ctx context.Context, limit int) ([]domain.FireRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alarm_id, shift_id, shift_name, scheduled_at, fired_at, outcome, created_at
		FROM fires
		ORDER BY fired_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FireRecord
	for rows.Next() {
		var record domain.FireRecord
		var id, scheduledAt, firedAt, outcome, createdAt string
		err := rows.Scan(&id, &record.AlarmID, &record.ShiftID, &record.ShiftName, &scheduledAt, &firedAt, &outcome, &createdAt)
		if err != nil {
			return nil, err
		}
		if record.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("decode fire id: %w", err)
		}
		if record.ScheduledAt, err = decodeTime(scheduledAt); err != nil {
			return nil, fmt.Errorf("decode scheduled_at: %w", err)
		}
		if record.FiredAt, err = decodeTime(firedAt); err != nil {
			return nil, fmt.Errorf("decode fired_at: %w", err)
		}
		if record.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at: %w", err)
		}
		record.Outcome = domain.FireOutcome(outcome)
		result = append(result, record)
	}
	return result, rows.Err()
}

// Compile-time interface assertions
var (
	_ lifecycle.AlarmStore = (*Store)(nil)
	_ recovery.AlarmStore  = (*Store)(nil)
	_ recovery.EventCache  = (*Store)(nil)
	_ skip.AlarmLister     = (*Store)(nil)
	_ skip.MarkerStore     = (*Store)(nil)
	_ registry.ConfigStore = (*Store)(nil)
	_ firing.FireStore     = (*Store)(nil)
)
