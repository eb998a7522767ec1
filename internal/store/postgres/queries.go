package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS alarms (
    id             integer PRIMARY KEY,
    event_id       text NOT NULL,
    shift_id       text NOT NULL,
    shift_name     text NOT NULL,
    trigger_at     timestamptz NOT NULL,
    formatted_time text NOT NULL,
    active         boolean NOT NULL DEFAULT true,
    created_at     timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS shift_config (
    slot       integer PRIMARY KEY CHECK (slot = 1),
    config     jsonb NOT NULL,
    updated_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS skip_marker (
    slot     integer PRIMARY KEY CHECK (slot = 1),
    alarm_id integer NOT NULL,
    set_at   timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS cached_events (
    id          text PRIMARY KEY,
    title       text NOT NULL,
    start_at    timestamptz NOT NULL,
    end_at      timestamptz NOT NULL,
    calendar_id text NOT NULL
);

CREATE TABLE IF NOT EXISTS fires (
    id           uuid PRIMARY KEY,
    alarm_id     integer NOT NULL,
    shift_id     text NOT NULL,
    shift_name   text NOT NULL,
    scheduled_at timestamptz NOT NULL,
    fired_at     timestamptz NOT NULL,
    outcome      text NOT NULL,
    created_at   timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alarms_trigger_at ON alarms (trigger_at);
CREATE INDEX IF NOT EXISTS idx_fires_alarm_id ON fires (alarm_id);
`

const queryInsertAlarm = `
INSERT INTO alarms (id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    event_id = EXCLUDED.event_id,
    shift_id = EXCLUDED.shift_id,
    shift_name = EXCLUDED.shift_name,
    trigger_at = EXCLUDED.trigger_at,
    formatted_time = EXCLUDED.formatted_time,
    active = EXCLUDED.active,
    created_at = EXCLUDED.created_at
`

const queryDeleteAlarm = `
DELETE FROM alarms WHERE id = $1
`

const queryDeleteAllAlarms = `
DELETE FROM alarms
`

const queryGetAlarm = `
SELECT id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at
FROM alarms
WHERE id = $1
`

const queryListAlarms = `
SELECT id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at
FROM alarms
ORDER BY trigger_at ASC
`

const queryListFutureAlarms = `
SELECT id, event_id, shift_id, shift_name, trigger_at, formatted_time, active, created_at
FROM alarms
WHERE trigger_at > $1 AND active = true
ORDER BY trigger_at ASC
`

const queryCountAlarms = `
SELECT count(*) FROM alarms
`

const queryLoadShiftConfig = `
SELECT config FROM shift_config WHERE slot = 1
`

const querySaveShiftConfig = `
INSERT INTO shift_config (slot, config, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (slot) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at
`

const queryGetSkipMarker = `
SELECT alarm_id, set_at FROM skip_marker WHERE slot = 1
`

const querySetSkipMarker = `
INSERT INTO skip_marker (slot, alarm_id, set_at)
VALUES (1, $1, $2)
ON CONFLICT (slot) DO UPDATE SET alarm_id = EXCLUDED.alarm_id, set_at = EXCLUDED.set_at
`

const queryClearSkipMarker = `
DELETE FROM skip_marker WHERE slot = 1
`

const queryDeleteCachedEvents = `
DELETE FROM cached_events
`

const queryInsertCachedEvent = `
INSERT INTO cached_events (id, title, start_at, end_at, calendar_id)
VALUES ($1, $2, $3, $4, $5)
`

const queryListCachedEvents = `
SELECT id, title, start_at, end_at, calendar_id
FROM cached_events
ORDER BY start_at ASC
`

const queryInsertFire = `
INSERT INTO fires (id, alarm_id, shift_id, shift_name, scheduled_at, fired_at, outcome, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryUpdateFireOutcome = `
UPDATE fires
SET outcome = $1
WHERE id = $2
  AND outcome NOT IN ('executed', 'skipped', 'failed')
`

const queryGetFireOutcome = `
SELECT outcome FROM fires WHERE id = $1
`

const queryListRecentFires = `
SELECT id, alarm_id, shift_id, shift_name, scheduled_at, fired_at, outcome, created_at
FROM fires
ORDER BY fired_at DESC
LIMIT $1
`
