package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const attendanceCols = `id, user_id, date::TEXT AS date, check_in_time, check_out_time, total_hours, status`

// AttendanceForUpdate reads the day row under a row lock so the state
// machine's read-then-write is serialisable per (user_id, date). Returns
// (nil, nil) when no row exists yet.
func (t *Tx) AttendanceForUpdate(ctx context.Context, userID int64, date string) (*AttendanceDay, error) {
	var day AttendanceDay
	err := t.tx.GetContext(ctx, &day, `
		SELECT `+attendanceCols+` FROM attendance
		WHERE user_id = $1 AND date = $2 FOR UPDATE`, userID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &day, nil
}

// InsertCheckIn creates the day row on the user's first reading of the day.
func (t *Tx) InsertCheckIn(ctx context.Context, userID int64, date string, checkIn time.Time) (*AttendanceDay, error) {
	var day AttendanceDay
	err := t.tx.GetContext(ctx, &day, `
		INSERT INTO attendance (user_id, date, check_in_time, status)
		VALUES ($1, $2, $3, 'present')
		RETURNING `+attendanceCols, userID, date, checkIn)
	if err != nil {
		return nil, mapError(err)
	}
	return &day, nil
}

// SetCheckIn establishes the check-in bound on a row created without one
// (absent sweep, manual override) and flips it to present.
func (t *Tx) SetCheckIn(ctx context.Context, id int64, checkIn time.Time) (*AttendanceDay, error) {
	var day AttendanceDay
	err := t.tx.GetContext(ctx, &day, `
		UPDATE attendance SET check_in_time = $2, status = 'present'
		WHERE id = $1
		RETURNING `+attendanceCols, id, checkIn)
	if err != nil {
		return nil, mapError(err)
	}
	return &day, nil
}

// UpdateCheckOut advances the day's check-out bound and total hours.
func (t *Tx) UpdateCheckOut(ctx context.Context, id int64, checkOut time.Time, totalHours float64) (*AttendanceDay, error) {
	var day AttendanceDay
	err := t.tx.GetContext(ctx, &day, `
		UPDATE attendance SET check_out_time = $2, total_hours = $3
		WHERE id = $1
		RETURNING `+attendanceCols, id, checkOut, totalHours)
	if err != nil {
		return nil, mapError(err)
	}
	return &day, nil
}

// MarkAbsent inserts status='absent' rows for every employee with no row on
// the date. Idempotent under the (user_id, date) unique key.
func (s *Store) MarkAbsent(ctx context.Context, date string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (user_id, date, status)
		SELECT u.id, $1, 'absent' FROM users u
		WHERE u.role = 'employee'
		  AND NOT EXISTS (SELECT 1 FROM attendance a WHERE a.user_id = u.id AND a.date = $1)
		ON CONFLICT (user_id, date) DO NOTHING`, date)
	if err != nil {
		return 0, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetAttendanceStatus is the supervisor manual-override path; it upserts the
// day row with the given status.
func (s *Store) SetAttendanceStatus(ctx context.Context, userID int64, date, status string) (*AttendanceDay, error) {
	var day AttendanceDay
	err := s.db.GetContext(ctx, &day, `
		INSERT INTO attendance (user_id, date, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, date) DO UPDATE SET status = EXCLUDED.status
		RETURNING `+attendanceCols, userID, date, status)
	if err != nil {
		return nil, mapError(err)
	}
	return &day, nil
}

// AttendanceByDate lists the date's rows with user names.
func (s *Store) AttendanceByDate(ctx context.Context, date string, userID *int64) ([]AttendanceWithUser, error) {
	var rows []AttendanceWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.date::TEXT AS date, a.check_in_time, a.check_out_time,
			a.total_hours, a.status, u.name AS user_name, u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date = $1 AND ($2::BIGINT IS NULL OR a.user_id = $2)
		ORDER BY u.name`, date, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AttendanceHistory lists a user's rows between two dates, newest first.
func (s *Store) AttendanceHistory(ctx context.Context, userID int64, from, to string) ([]AttendanceDay, error) {
	var rows []AttendanceDay
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+attendanceCols+` FROM attendance
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AttendanceSummaryForDate aggregates one date across users.
func (s *Store) AttendanceSummaryForDate(ctx context.Context, date string) (*AttendanceSummary, error) {
	var row struct {
		Present    int64    `db:"present"`
		Absent     int64    `db:"absent"`
		Partial    int64    `db:"partial"`
		TotalHours *float64 `db:"total_hours"`
		AvgHours   *float64 `db:"avg_hours"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'present') AS present,
			COUNT(*) FILTER (WHERE status = 'absent')  AS absent,
			COUNT(*) FILTER (WHERE status = 'partial') AS partial,
			COALESCE(SUM(total_hours), 0) AS total_hours,
			AVG(total_hours) AS avg_hours
		FROM attendance WHERE date = $1`, date)
	if err != nil {
		return nil, mapError(err)
	}
	out := &AttendanceSummary{
		Date:    date,
		Present: row.Present,
		Absent:  row.Absent,
		Partial: row.Partial,
	}
	if row.TotalHours != nil {
		out.TotalHours = *row.TotalHours
	}
	if row.AvgHours != nil {
		out.AverageHours = *row.AvgHours
	}
	return out, nil
}

// AttendanceStatsRow aggregates one user's attendance over a date range.
type AttendanceStatsRow struct {
	UserID      int64    `db:"user_id" json:"user_id"`
	UserName    string   `db:"user_name" json:"user_name"`
	DaysPresent int64    `db:"days_present" json:"days_present"`
	DaysAbsent  int64    `db:"days_absent" json:"days_absent"`
	TotalHours  *float64 `db:"total_hours" json:"total_hours,omitempty"`
	AvgHours    *float64 `db:"avg_hours" json:"average_hours,omitempty"`
}

// AttendanceStats aggregates per user between two dates.
func (s *Store) AttendanceStats(ctx context.Context, from, to string) ([]AttendanceStatsRow, error) {
	var rows []AttendanceStatsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.user_id, u.name AS user_name,
			COUNT(*) FILTER (WHERE a.status = 'present') AS days_present,
			COUNT(*) FILTER (WHERE a.status = 'absent')  AS days_absent,
			SUM(a.total_hours) AS total_hours,
			AVG(a.total_hours) AS avg_hours
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date >= $1 AND a.date <= $2
		GROUP BY a.user_id, u.name
		ORDER BY u.name`, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// LateArrivals lists rows whose check-in falls after the cutoff time of day.
func (s *Store) LateArrivals(ctx context.Context, date string, cutoff time.Time) ([]AttendanceWithUser, error) {
	var rows []AttendanceWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.date::TEXT AS date, a.check_in_time, a.check_out_time,
			a.total_hours, a.status, u.name AS user_name, u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date = $1 AND a.check_in_time > $2
		ORDER BY a.check_in_time`, date, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// EarlyDepartures lists rows whose check-out precedes the cutoff time of day.
func (s *Store) EarlyDepartures(ctx context.Context, date string, cutoff time.Time) ([]AttendanceWithUser, error) {
	var rows []AttendanceWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.date::TEXT AS date, a.check_in_time, a.check_out_time,
			a.total_hours, a.status, u.name AS user_name, u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date = $1 AND a.check_out_time IS NOT NULL AND a.check_out_time < $2
		ORDER BY a.check_out_time`, date, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// Overtime lists rows exceeding the standard daily hours.
func (s *Store) Overtime(ctx context.Context, date string, standardHours float64) ([]AttendanceWithUser, error) {
	var rows []AttendanceWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.date::TEXT AS date, a.check_in_time, a.check_out_time,
			a.total_hours, a.status, u.name AS user_name, u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date = $1 AND a.total_hours > $2
		ORDER BY a.total_hours DESC`, date, standardHours)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AttendanceTrendRow is one date's presence counts.
type AttendanceTrendRow struct {
	Date    string `db:"date" json:"date"`
	Present int64  `db:"present" json:"present"`
	Absent  int64  `db:"absent" json:"absent"`
}

// AttendanceTrends counts presence per date since the given date.
func (s *Store) AttendanceTrends(ctx context.Context, from string) ([]AttendanceTrendRow, error) {
	var rows []AttendanceTrendRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date::TEXT AS date,
			COUNT(*) FILTER (WHERE status = 'present') AS present,
			COUNT(*) FILTER (WHERE status = 'absent')  AS absent
		FROM attendance
		WHERE date >= $1
		GROUP BY date ORDER BY date`, from)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AttendanceCalendar lists a user's rows inside one month (from inclusive,
// to exclusive), oldest first, for the calendar widget.
func (s *Store) AttendanceCalendar(ctx context.Context, userID int64, from, to string) ([]AttendanceDay, error) {
	var rows []AttendanceDay
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+attendanceCols+` FROM attendance
		WHERE user_id = $1 AND date >= $2 AND date < $3
		ORDER BY date`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// AttendanceExport lists every row with user names between two dates for
// the CSV export.
func (s *Store) AttendanceExport(ctx context.Context, from, to string) ([]AttendanceWithUser, error) {
	var rows []AttendanceWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.date::TEXT AS date, a.check_in_time, a.check_out_time,
			a.total_hours, a.status, u.name AS user_name, u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date >= $1 AND a.date <= $2
		ORDER BY a.date, u.name`, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}
