package database

import "context"

// Bootstrap creates all tables and indexes if they do not exist. It runs on
// every startup and never drops anything.
func (s *Store) Bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL CHECK (role IN ('employee','supervisor')),
			department    TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc'),
			updated_at    TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS devices (
			id            BIGSERIAL PRIMARY KEY,
			device_serial TEXT NOT NULL UNIQUE,
			user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			battery_level INT,
			last_seen     TIMESTAMPTZ,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
		)`,
		`CREATE TABLE IF NOT EXISTS vitals (
			id            BIGSERIAL PRIMARY KEY,
			device_id     BIGINT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			timestamp     TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc'),
			heart_rate    INT,
			spo2          INT,
			temperature   NUMERIC(4,1),
			latitude      DOUBLE PRECISION,
			longitude     DOUBLE PRECISION,
			gps_accuracy  DOUBLE PRECISION,
			fall_detected BOOLEAN NOT NULL DEFAULT FALSE,
			co            DOUBLE PRECISION,
			h2s           DOUBLE PRECISION,
			ch4           DOUBLE PRECISION,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              BIGSERIAL PRIMARY KEY,
			device_id       BIGINT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type            TEXT NOT NULL,
			severity        TEXT NOT NULL CHECK (severity IN ('low','medium','high','critical')),
			message         TEXT NOT NULL DEFAULT '',
			value           DOUBLE PRECISION,
			threshold       DOUBLE PRECISION,
			acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
			acknowledged_at TIMESTAMPTZ,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at     TIMESTAMPTZ,
			timestamp       TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id             BIGSERIAL PRIMARY KEY,
			user_id        BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			date           DATE NOT NULL,
			check_in_time  TIMESTAMPTZ,
			check_out_time TIMESTAMPTZ,
			total_hours    NUMERIC(4,1),
			status         TEXT NOT NULL DEFAULT 'present' CHECK (status IN ('present','absent','partial')),
			UNIQUE (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS compliance (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category    TEXT NOT NULL,
			risk_level  TEXT NOT NULL DEFAULT 'low',
			description TEXT NOT NULL DEFAULT '',
			reviewed    BOOLEAN NOT NULL DEFAULT FALSE,
			reviewed_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
			reviewed_at TIMESTAMPTZ,
			assigned_to BIGINT REFERENCES users(id) ON DELETE SET NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vitals_device_ts ON vitals (device_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ack_ts ON alerts (acknowledged, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_ts ON alerts (user_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_user_date ON attendance (user_id, date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_user_active ON devices (user_id, is_active)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}
	s.logger.Printf("schema bootstrap complete (%d statements)", len(stmts))
	return nil
}
