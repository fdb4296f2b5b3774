package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const alertCols = `id, device_id, user_id, type, severity, message, value, threshold,
	acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, timestamp`

// InsertAlerts persists a batch of derived alerts inside the ingestion
// transaction. An empty batch is a no-op.
func (t *Tx) InsertAlerts(ctx context.Context, alerts []Alert) ([]Alert, error) {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		var saved Alert
		err := t.tx.GetContext(ctx, &saved, `
			INSERT INTO alerts (device_id, user_id, type, severity, message, value, threshold, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+alertCols,
			a.DeviceID, a.UserID, a.Type, a.Severity, a.Message, a.Value, a.Threshold, a.Timestamp)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, saved)
	}
	return out, nil
}

// InsertAlert persists a single alert outside any ingestion transaction
// (offline sweep).
func (s *Store) InsertAlert(ctx context.Context, a Alert) (*Alert, error) {
	var saved Alert
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO alerts (device_id, user_id, type, severity, message, value, threshold, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+alertCols,
		a.DeviceID, a.UserID, a.Type, a.Severity, a.Message, a.Value, a.Threshold, a.Timestamp)
	if err != nil {
		return nil, mapError(err)
	}
	return &saved, nil
}

// FindAlertByID returns NotFound for unknown ids.
func (s *Store) FindAlertByID(ctx context.Context, id int64) (*Alert, error) {
	var a Alert
	err := s.db.GetContext(ctx, &a, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

// ListAlerts applies the filter and returns newest-first pages.
func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if f.DeviceID != nil {
		where = append(where, "device_id = "+arg(*f.DeviceID))
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(f.Type))
	}
	if f.Severity != "" {
		where = append(where, "severity = "+arg(f.Severity))
	}
	if f.Acknowledged != nil {
		where = append(where, "acknowledged = "+arg(*f.Acknowledged))
	}
	if f.Resolved != nil {
		where = append(where, "resolved = "+arg(*f.Resolved))
	}
	if f.Since != nil {
		where = append(where, "timestamp >= "+arg(*f.Since))
	}
	if f.Until != nil {
		where = append(where, "timestamp <= "+arg(*f.Until))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := `SELECT ` + alertCols + ` FROM alerts WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY timestamp DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	var alerts []Alert
	if err := s.db.SelectContext(ctx, &alerts, q, args...); err != nil {
		return nil, mapError(err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks one alert acknowledged. Already-acknowledged rows
// are untouched, preserving the original actor and time; the caller reads
// the row back to observe which case applied.
func (s *Store) AcknowledgeAlert(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT acknowledged`, id, actorID, at)
	return mapError(err)
}

// LockAlerts selects the rows for a bulk acknowledge under FOR UPDATE so the
// per-id ownership re-check and the update are atomic.
func (t *Tx) LockAlerts(ctx context.Context, ids []int64) ([]Alert, error) {
	var alerts []Alert
	err := t.tx.SelectContext(ctx, &alerts, `
		SELECT `+alertCols+` FROM alerts WHERE id = ANY($1) FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return nil, mapError(err)
	}
	return alerts, nil
}

// BulkAcknowledge applies the acknowledgement to every id in one statement.
func (t *Tx) BulkAcknowledge(ctx context.Context, ids []int64, actorID int64, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = ANY($1) AND NOT acknowledged`, pq.Array(ids), actorID, at)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResolveAlert marks an alert resolved. Resolution is independent of the
// acknowledgement fields.
func (s *Store) ResolveAlert(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET resolved = TRUE, resolved_at = $2
		WHERE id = $1 AND NOT resolved`, id, at)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(res)
}

type severityCount struct {
	Severity string `db:"severity"`
	Count    int64  `db:"count"`
}

type typeCount struct {
	Type  string `db:"type"`
	Count int64  `db:"count"`
}

// AlertStats computes dashboard counters, optionally scoped to one user.
func (s *Store) AlertStats(ctx context.Context, userID *int64) (*AlertStats, error) {
	stats := &AlertStats{
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
	}

	err := s.db.GetContext(ctx, &stats.Total, `
		SELECT COUNT(*) FROM alerts WHERE ($1::BIGINT IS NULL OR user_id = $1)`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	err = s.db.GetContext(ctx, &stats.Unacknowledged, `
		SELECT COUNT(*) FROM alerts
		WHERE NOT acknowledged AND ($1::BIGINT IS NULL OR user_id = $1)`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	err = s.db.GetContext(ctx, &stats.Critical, `
		SELECT COUNT(*) FROM alerts
		WHERE severity = 'critical' AND NOT resolved AND ($1::BIGINT IS NULL OR user_id = $1)`, userID)
	if err != nil {
		return nil, mapError(err)
	}

	var bySev []severityCount
	err = s.db.SelectContext(ctx, &bySev, `
		SELECT severity, COUNT(*) AS count FROM alerts
		WHERE ($1::BIGINT IS NULL OR user_id = $1) GROUP BY severity`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	for _, r := range bySev {
		stats.BySeverity[r.Severity] = r.Count
	}

	var byType []typeCount
	err = s.db.SelectContext(ctx, &byType, `
		SELECT type, COUNT(*) AS count FROM alerts
		WHERE ($1::BIGINT IS NULL OR user_id = $1) GROUP BY type`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	for _, r := range byType {
		stats.ByType[r.Type] = r.Count
	}

	return stats, nil
}

// AlertTrends buckets alerts by day over the window.
func (s *Store) AlertTrends(ctx context.Context, userID *int64, since time.Time) ([]AlertBucket, error) {
	var rows []AlertBucket
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', timestamp) AS bucket, COUNT(*) AS count
		FROM alerts
		WHERE ($1::BIGINT IS NULL OR user_id = $1) AND timestamp >= $2
		GROUP BY bucket ORDER BY bucket`, userID, since)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AlertsHourly buckets one calendar day's alerts by hour.
func (s *Store) AlertsHourly(ctx context.Context, userID *int64, dayStart time.Time) ([]AlertBucket, error) {
	var rows []AlertBucket
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('hour', timestamp) AS bucket, COUNT(*) AS count
		FROM alerts
		WHERE ($1::BIGINT IS NULL OR user_id = $1)
		  AND timestamp >= $2 AND timestamp < $3
		GROUP BY bucket ORDER BY bucket`, userID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// CleanupAlerts deletes resolved alerts older than the cutoff.
func (s *Store) CleanupAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM alerts WHERE resolved AND timestamp < $1`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearAlerts removes every alert. Supervisor-only test hook.
func (s *Store) ClearAlerts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
