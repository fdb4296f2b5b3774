// Package attendance implements the per-user daily presence state machine:
// check-in on the first signal of the day, check-out advanced by every
// later signal, and the idempotent absent sweep.
package attendance

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/sitewatch/backend/internal/database"
)

// Machine applies reading timestamps to day records. Dates are computed in
// the configured zone (the system time zone in production).
type Machine struct {
	loc    *time.Location
	logger *log.Logger
}

// NewMachine builds a state machine for the given zone. A nil zone means
// time.Local.
func NewMachine(loc *time.Location) *Machine {
	if loc == nil {
		loc = time.Local
	}
	return &Machine{
		loc:    loc,
		logger: log.New(log.Writer(), "[Attendance] ", log.LstdFlags),
	}
}

// DateOf yields the attendance date for a timestamp.
func (m *Machine) DateOf(ts time.Time) string {
	return ts.In(m.loc).Format(database.DateLayout)
}

// Apply advances the user's day record for one reading. It must run inside
// the ingestion transaction: the day row is read under FOR UPDATE so
// concurrent readings for the same user serialise.
//
//   - no row          → insert with check_in_time = ts, status present
//   - check-in only   → set check_out_time = ts, recompute total hours
//   - both set        → check_out_time = max(existing, ts), recompute
//
// The returned bool reports whether the row changed; a stale timestamp that
// does not advance the check-out leaves the row untouched.
func (m *Machine) Apply(ctx context.Context, tx *database.Tx, userID int64, ts time.Time) (*database.AttendanceDay, bool, error) {
	date := m.DateOf(ts)

	day, err := tx.AttendanceForUpdate(ctx, userID, date)
	if err != nil {
		return nil, false, err
	}

	if day == nil {
		created, err := tx.InsertCheckIn(ctx, userID, date, ts)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	if day.CheckInTime == nil {
		// Row exists from the absent sweep or a manual override; the first
		// real signal still establishes the check-in bound.
		updated, err := tx.SetCheckIn(ctx, day.ID, ts)
		if err != nil {
			return nil, false, err
		}
		return updated, true, nil
	}

	checkOut := ts
	if day.CheckOutTime != nil && day.CheckOutTime.After(ts) {
		return day, false, nil
	}

	hours := RoundHours(checkOut.Sub(*day.CheckInTime))
	updated, err := tx.UpdateCheckOut(ctx, day.ID, checkOut, hours)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// RoundHours converts a duration to hours with one-decimal precision.
func RoundHours(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	return math.Round(d.Hours()*10) / 10
}

// Sweep inserts absent rows for every employee without a record on the
// date. Idempotent under the (user_id, date) unique key; re-running
// produces zero new rows.
func (m *Machine) Sweep(ctx context.Context, store *database.Store, date string) (int64, error) {
	n, err := store.MarkAbsent(ctx, date)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Printf("marked %d employee(s) absent for %s", n, date)
	}
	return n, nil
}
