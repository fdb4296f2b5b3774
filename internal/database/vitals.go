package database

import (
	"context"
	"time"
)

const vitalCols = `v.id, v.device_id, v.timestamp, v.heart_rate, v.spo2, v.temperature,
	v.latitude, v.longitude, v.gps_accuracy, v.fall_detected, v.co, v.h2s, v.ch4, v.created_at`

// InsertVital persists one reading inside the ingestion transaction.
func (t *Tx) InsertVital(ctx context.Context, v *Vital) (*Vital, error) {
	var out Vital
	err := t.tx.GetContext(ctx, &out, `
		INSERT INTO vitals (device_id, timestamp, heart_rate, spo2, temperature,
			latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, device_id, timestamp, heart_rate, spo2, temperature,
			latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4, created_at`,
		v.DeviceID, v.Timestamp, v.HeartRate, v.SpO2, v.Temperature,
		v.Latitude, v.Longitude, v.GPSAccuracy, v.FallDetected, v.CO, v.H2S, v.CH4)
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// LatestVitals returns the most recent reading per user. A nil userID means
// all users (supervisor scope).
func (s *Store) LatestVitals(ctx context.Context, userID *int64) ([]VitalWithUser, error) {
	q := `
		SELECT DISTINCT ON (d.user_id) ` + vitalCols + `, d.user_id, u.name AS user_name
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		JOIN users u ON u.id = d.user_id
		WHERE ($1::BIGINT IS NULL OR d.user_id = $1)
		ORDER BY d.user_id, v.timestamp DESC`
	var rows []VitalWithUser
	if err := s.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// VitalHistory lists a user's readings within a window, newest first.
func (s *Store) VitalHistory(ctx context.Context, userID int64, since, until time.Time, limit int) ([]VitalWithUser, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var rows []VitalWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+vitalCols+`, d.user_id, u.name AS user_name
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1 AND v.timestamp >= $2 AND v.timestamp <= $3
		ORDER BY v.timestamp DESC
		LIMIT $4`, userID, since, until, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// VitalsByDevice lists a single device's readings, newest first.
func (s *Store) VitalsByDevice(ctx context.Context, deviceID int64, limit int) ([]Vital, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var rows []Vital
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, device_id, timestamp, heart_rate, spo2, temperature,
			latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4, created_at
		FROM vitals v
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AbnormalVitals lists readings outside the default safe bands within the
// window. The bounds mirror the evaluator defaults; the gateway only
// selects, the evaluator stays the single source of alert truth.
func (s *Store) AbnormalVitals(ctx context.Context, userID *int64, since time.Time, limit int) ([]VitalWithUser, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var rows []VitalWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+vitalCols+`, d.user_id, u.name AS user_name
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		JOIN users u ON u.id = d.user_id
		WHERE ($1::BIGINT IS NULL OR d.user_id = $1)
		  AND v.timestamp >= $2
		  AND (v.fall_detected
			OR v.heart_rate < 60 OR v.heart_rate > 100
			OR v.spo2 < 95
			OR v.temperature < 36.0 OR v.temperature > 37.5
			OR v.co > 35 OR v.h2s > 10 OR v.ch4 > 10)
		ORDER BY v.timestamp DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// VitalStatsRow aggregates one user's readings over a window.
type VitalStatsRow struct {
	UserID   int64    `db:"user_id" json:"user_id"`
	Readings int64    `db:"readings" json:"readings"`
	AvgHR    *float64 `db:"avg_hr" json:"avg_heart_rate,omitempty"`
	MinHR    *int     `db:"min_hr" json:"min_heart_rate,omitempty"`
	MaxHR    *int     `db:"max_hr" json:"max_heart_rate,omitempty"`
	AvgSpO2  *float64 `db:"avg_spo2" json:"avg_spo2,omitempty"`
	MinSpO2  *int     `db:"min_spo2" json:"min_spo2,omitempty"`
	AvgTemp  *float64 `db:"avg_temp" json:"avg_temperature,omitempty"`
	MaxTemp  *float64 `db:"max_temp" json:"max_temperature,omitempty"`
}

// VitalStats computes per-user aggregates. Nil userID covers every user.
func (s *Store) VitalStats(ctx context.Context, userID *int64, since time.Time) ([]VitalStatsRow, error) {
	var rows []VitalStatsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.user_id,
			COUNT(*) AS readings,
			AVG(v.heart_rate) AS avg_hr, MIN(v.heart_rate) AS min_hr, MAX(v.heart_rate) AS max_hr,
			AVG(v.spo2) AS avg_spo2, MIN(v.spo2) AS min_spo2,
			AVG(v.temperature) AS avg_temp, MAX(v.temperature) AS max_temp
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		WHERE ($1::BIGINT IS NULL OR d.user_id = $1) AND v.timestamp >= $2
		GROUP BY d.user_id
		ORDER BY d.user_id`, userID, since)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// VitalTrendRow is one hourly bucket of a user's averages.
type VitalTrendRow struct {
	Bucket  time.Time `db:"bucket" json:"bucket"`
	AvgHR   *float64  `db:"avg_hr" json:"avg_heart_rate,omitempty"`
	AvgSpO2 *float64  `db:"avg_spo2" json:"avg_spo2,omitempty"`
	AvgTemp *float64  `db:"avg_temp" json:"avg_temperature,omitempty"`
}

// VitalTrends buckets a user's readings by hour over the window.
func (s *Store) VitalTrends(ctx context.Context, userID int64, since time.Time) ([]VitalTrendRow, error) {
	var rows []VitalTrendRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('hour', v.timestamp) AS bucket,
			AVG(v.heart_rate) AS avg_hr,
			AVG(v.spo2) AS avg_spo2,
			AVG(v.temperature) AS avg_temp
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		WHERE d.user_id = $1 AND v.timestamp >= $2
		GROUP BY bucket
		ORDER BY bucket`, userID, since)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// LocationRow is the latest known position of one user.
type LocationRow struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	UserName    string    `db:"user_name" json:"user_name"`
	Latitude    float64   `db:"latitude" json:"latitude"`
	Longitude   float64   `db:"longitude" json:"longitude"`
	GPSAccuracy *float64  `db:"gps_accuracy" json:"gps_accuracy,omitempty"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}

// CurrentLocations returns the freshest positioned reading per user.
func (s *Store) CurrentLocations(ctx context.Context, userID *int64) ([]LocationRow, error) {
	var rows []LocationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (d.user_id) d.user_id, u.name AS user_name,
			v.latitude, v.longitude, v.gps_accuracy, v.timestamp
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		JOIN users u ON u.id = d.user_id
		WHERE v.latitude IS NOT NULL AND v.longitude IS NOT NULL
		  AND ($1::BIGINT IS NULL OR d.user_id = $1)
		ORDER BY d.user_id, v.timestamp DESC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// LocationHistory lists a user's positioned readings, oldest first, so the
// track renders in travel order.
func (s *Store) LocationHistory(ctx context.Context, userID int64, since time.Time, limit int) ([]LocationRow, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	var rows []LocationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.user_id, u.name AS user_name, v.latitude, v.longitude, v.gps_accuracy, v.timestamp
		FROM vitals v
		JOIN devices d ON d.id = v.device_id
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1 AND v.timestamp >= $2
		  AND v.latitude IS NOT NULL AND v.longitude IS NOT NULL
		ORDER BY v.timestamp
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// CleanupVitals deletes readings older than the cutoff; returns rows removed.
func (s *Store) CleanupVitals(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vitals WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearVitals removes every reading. Supervisor-only test hook.
func (s *Store) ClearVitals(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vitals`)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
