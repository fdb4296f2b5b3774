package database

import (
	"context"
	"time"
)

const complianceCols = `id, user_id, category, risk_level, description,
	reviewed, reviewed_by, reviewed_at, assigned_to, created_at`

// CreateCompliance inserts a narrative compliance record.
func (s *Store) CreateCompliance(ctx context.Context, rec ComplianceRecord) (*ComplianceRecord, error) {
	var out ComplianceRecord
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO compliance (user_id, category, risk_level, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+complianceCols,
		rec.UserID, rec.Category, rec.RiskLevel, rec.Description)
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// FindComplianceByID returns NotFound for unknown ids.
func (s *Store) FindComplianceByID(ctx context.Context, id int64) (*ComplianceRecord, error) {
	var rec ComplianceRecord
	err := s.db.GetContext(ctx, &rec, `SELECT `+complianceCols+` FROM compliance WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &rec, nil
}

// ListCompliance returns records, optionally scoped to one user, with
// optional unreviewed-only and high-risk-only narrowing.
func (s *Store) ListCompliance(ctx context.Context, userID *int64, unreviewedOnly, highRiskOnly bool) ([]ComplianceRecord, error) {
	var rows []ComplianceRecord
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+complianceCols+` FROM compliance
		WHERE ($1::BIGINT IS NULL OR user_id = $1)
		  AND (NOT $2 OR NOT reviewed)
		  AND (NOT $3 OR risk_level IN ('high','critical'))
		ORDER BY created_at DESC
		LIMIT 200`, userID, unreviewedOnly, highRiskOnly)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// ReviewCompliance marks a record reviewed by the supervisor.
func (s *Store) ReviewCompliance(ctx context.Context, id, reviewerID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE compliance SET reviewed = TRUE, reviewed_by = $2, reviewed_at = $3
		WHERE id = $1`, id, reviewerID, at)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(res)
}

// AssignCompliance routes a record to a user for follow-up.
func (s *Store) AssignCompliance(ctx context.Context, id, assigneeID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE compliance SET assigned_to = $2 WHERE id = $1`, id, assigneeID)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(res)
}

// ComplianceStats counts records by review state and risk level.
func (s *Store) ComplianceStats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Key   string `db:"key"`
		Count int64  `db:"count"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT risk_level AS key, COUNT(*) AS count FROM compliance GROUP BY risk_level
		UNION ALL
		SELECT 'unreviewed', COUNT(*) FROM compliance WHERE NOT reviewed
		UNION ALL
		SELECT 'total', COUNT(*) FROM compliance`)
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// ComplianceTrends buckets records by day over the window.
func (s *Store) ComplianceTrends(ctx context.Context, since time.Time) ([]AlertBucket, error) {
	var rows []AlertBucket
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', created_at) AS bucket, COUNT(*) AS count
		FROM compliance WHERE created_at >= $1
		GROUP BY bucket ORDER BY bucket`, since)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}
