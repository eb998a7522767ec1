// Package postgres implements the storage collaborators on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shiftwake/internal/domain"
	"shiftwake/internal/firing"
	"shiftwake/internal/lifecycle"
	"shiftwake/internal/recovery"
	"shiftwake/internal/registry"
	"shiftwake/internal/skip"
)

// Store implements the alarm, config, skip, event cache, and fire storage
// interfaces using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// PingContext reports database liveness for health checks.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, querySchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAlarm upserts an alarm row keyed by its derived id. The upsert makes
// id collisions last-writer-wins instead of a batch failure.
func (s *Store) InsertAlarm(ctx context.Context, alarm domain.AlarmInfo) error {
	_, err := s.db.ExecContext(ctx, queryInsertAlarm,
		alarm.ID,
		alarm.EventID,
		alarm.ShiftID,
		alarm.ShiftName,
		alarm.TriggerAt,
		alarm.FormattedTime,
		alarm.Active,
		alarm.CreatedAt,
	)
	return err
}

func (s *Store) DeleteAlarm(ctx context.Context, id int32) error {
	_, err := s.db.ExecContext(ctx, queryDeleteAlarm, id)
	return err
}

func (s *Store) DeleteAllAlarms(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queryDeleteAllAlarms)
	return err
}

// GetAlarm returns one alarm by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetAlarm(ctx context.Context, id int32) (domain.AlarmInfo, error) {
	var alarm domain.AlarmInfo
	err := s.db.QueryRowContext(ctx, queryGetAlarm, id).Scan(
		&alarm.ID,
		&alarm.EventID,
		&alarm.ShiftID,
		&alarm.ShiftName,
		&alarm.TriggerAt,
		&alarm.FormattedTime,
		&alarm.Active,
		&alarm.CreatedAt,
	)
	if err != nil {
		return domain.AlarmInfo{}, err
	}
	return alarm, nil
}

func (s *Store) ListAlarms(ctx context.Context) ([]domain.AlarmInfo, error) {
	return s.queryAlarms(ctx, queryListAlarms)
}

func (s *Store) ListFutureAlarms(ctx context.Context, after time.Time) ([]domain.AlarmInfo, error) {
	return s.queryAlarms(ctx, queryListFutureAlarms, after)
}

func (s *Store) queryAlarms(ctx context.Context, query string, args ...any) ([]domain.AlarmInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AlarmInfo
	for rows.Next() {
		var alarm domain.AlarmInfo
		err := rows.Scan(
			&alarm.ID,
			&alarm.EventID,
			&alarm.ShiftID,
			&alarm.ShiftName,
			&alarm.TriggerAt,
			&alarm.FormattedTime,
			&alarm.Active,
			&alarm.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, alarm)
	}
	return result, rows.Err()
}

func (s *Store) CountAlarms(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, queryCountAlarms).Scan(&count)
	return count, err
}

// LoadShiftConfig reads the single config row. Returns registry.ErrNoConfig
// when nothing has been saved yet.
func (s *Store) LoadShiftConfig(ctx context.Context) (domain.ShiftConfig, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, queryLoadShiftConfig).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShiftConfig{}, registry.ErrNoConfig
	}
	if err != nil {
		return domain.ShiftConfig{}, err
	}
	var config domain.ShiftConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return domain.ShiftConfig{}, fmt.Errorf("decode shift config: %w", err)
	}
	return config, nil
}

func (s *Store) SaveShiftConfig(ctx context.Context, config domain.ShiftConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode shift config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, querySaveShiftConfig, raw, time.Now().UTC())
	return err
}

// GetSkipMarker reads the single-slot skip marker. The bool reports presence.
func (s *Store) GetSkipMarker(ctx context.Context) (domain.SkipMarker, bool, error) {
	var marker domain.SkipMarker
	err := s.db.QueryRowContext(ctx, queryGetSkipMarker).Scan(&marker.AlarmID, &marker.SetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SkipMarker{}, false, nil
	}
	if err != nil {
		return domain.SkipMarker{}, false, err
	}
	return marker, true, nil
}

func (s *Store) SetSkipMarker(ctx context.Context, marker domain.SkipMarker) error {
	_, err := s.db.ExecContext(ctx, querySetSkipMarker, marker.AlarmID, marker.SetAt)
	return err
}

func (s *Store) ClearSkipMarker(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queryClearSkipMarker)
	return err
}

// ReplaceCachedEvents swaps the cached event set in a transaction so readers
// never observe a half-written mix of old and new events.
func (s *Store) ReplaceCachedEvents(ctx context.Context, events []domain.CalendarEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryDeleteCachedEvents); err != nil {
		return err
	}
	for _, event := range events {
		_, err := tx.ExecContext(ctx, queryInsertCachedEvent,
			event.ID,
			event.Title,
			event.Start,
			event.End,
			event.CalendarID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListCachedEvents(ctx context.Context) ([]domain.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryListCachedEvents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CalendarEvent
	for rows.Next() {
		var event domain.CalendarEvent
		if err := rows.Scan(&event.ID, &event.Title, &event.Start, &event.End, &event.CalendarID); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (s *Store) InsertFire(ctx context.Context, record domain.FireRecord) error {
	_, err := s.db.ExecContext(ctx, queryInsertFire,
		record.ID,
		record.AlarmID,
		record.ShiftID,
		record.ShiftName,
		record.ScheduledAt,
		record.FiredAt,
		string(record.Outcome),
		record.CreatedAt,
	)
	return err
}

// UpdateFireOutcome updates the outcome of a fire record.
// Returns firing.ErrOutcomeFinal if the record is already terminal.
// The guard lives in the WHERE clause so the transition is atomic.
func (s *Store) UpdateFireOutcome(ctx context.Context, id uuid.UUID, outcome domain.FireOutcome) error {
	result, err := s.db.ExecContext(ctx, queryUpdateFireOutcome, string(outcome), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, queryGetFireOutcome, id).Scan(&current)
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
	rows, err := s.db.QueryContext(ctx, queryListRecentFires, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FireRecord
	for rows.Next() {
		var record domain.FireRecord
		var outcome string
		err := rows.Scan(
			&record.ID,
			&record.AlarmID,
			&record.ShiftID,
			&record.ShiftName,
			&record.ScheduledAt,
			&record.FiredAt,
			&outcome,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, err
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
