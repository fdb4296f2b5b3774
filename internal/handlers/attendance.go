package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

func validDate(raw string) (string, error) {
	if _, err := time.Parse(database.DateLayout, raw); err != nil {
		return "", errs.Invalid("date", "must be YYYY-MM-DD")
	}
	return raw, nil
}

// dateRange resolves ?from/?to with a default trailing window.
func dateRange(r *http.Request, fallbackDays int) (string, string, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -fallbackDays).Format(database.DateLayout)
	to := now.Format(database.DateLayout)

	if raw := r.URL.Query().Get("from"); raw != "" {
		v, err := validDate(raw)
		if err != nil {
			return "", "", errs.Invalid("from", "must be YYYY-MM-DD")
		}
		from = v
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		v, err := validDate(raw)
		if err != nil {
			return "", "", errs.Invalid("to", "must be YYYY-MM-DD")
		}
		to = v
	}
	return from, to, nil
}

// timeOfDay anchors a midnight offset onto a calendar date.
func timeOfDay(date string, offset time.Duration) time.Time {
	day, _ := time.Parse(database.DateLayout, date)
	return day.Add(offset)
}

func (a *API) attendanceToday(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	today := a.machine.DateOf(time.Now())
	rows, err := a.store.AttendanceByDate(r.Context(), today, sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) attendanceHistory(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	userID := actor.UserID
	if raw, err := pathID(r, "id"); err == nil {
		if err := auth.Allow(auth.ActionRead, actor, raw); err != nil {
			writeError(w, err)
			return
		}
		userID = raw
	}

	from, to, err := dateRange(r, 30)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.AttendanceHistory(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) attendanceByDate(w http.ResponseWriter, r *http.Request) {
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.AttendanceByDate(r.Context(), date, sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) attendanceSummary(w http.ResponseWriter, r *http.Request) {
	date := a.machine.DateOf(time.Now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		v, err := validDate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		date = v
	}
	summary, err := a.store.AttendanceSummaryForDate(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) attendanceStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r, 30)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.AttendanceStats(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) lateArrivals(w http.ResponseWriter, r *http.Request) {
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.LateArrivals(r.Context(), date, timeOfDay(date, a.cfg.AttendanceStart))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) earlyDepartures(w http.ResponseWriter, r *http.Request) {
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.EarlyDepartures(r.Context(), date, timeOfDay(date, a.cfg.AttendanceEnd))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) overtime(w http.ResponseWriter, r *http.Request) {
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.Overtime(r.Context(), date, a.cfg.StandardHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) attendanceTrends(w http.ResponseWriter, r *http.Request) {
	from := time.Now().UTC().AddDate(0, 0, -queryInt(r, "days", 30)).Format(database.DateLayout)
	rows, err := a.store.AttendanceTrends(r.Context(), from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// attendanceCalendar serves one month (?month=YYYY-MM, default current).
func (a *API) attendanceCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.Allow(auth.ActionRead, identity(r), userID); err != nil {
		writeError(w, err)
		return
	}

	month := time.Now().UTC().Format("2006-01")
	if raw := r.URL.Query().Get("month"); raw != "" {
		month = raw
	}
	start, err := time.Parse("2006-01", month)
	if err != nil {
		writeError(w, errs.Invalid("month", "must be YYYY-MM"))
		return
	}
	from := start.Format(database.DateLayout)
	to := start.AddDate(0, 1, 0).Format(database.DateLayout)

	rows, err := a.store.AttendanceCalendar(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// attendanceExport streams the range as CSV.
func (a *API) attendanceExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r, 30)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.AttendanceExport(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="attendance_%s_%s.csv"`, from, to))

	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "user_id", "name", "department", "check_in", "check_out", "total_hours", "status"})
	for _, row := range rows {
		record := []string{row.Date, fmt.Sprintf("%d", row.UserID), row.UserName, "", "", "", "", row.Status}
		if row.Department != nil {
			record[3] = *row.Department
		}
		if row.CheckInTime != nil {
			record[4] = row.CheckInTime.UTC().Format(time.RFC3339)
		}
		if row.CheckOutTime != nil {
			record[5] = row.CheckOutTime.UTC().Format(time.RFC3339)
		}
		if row.TotalHours != nil {
			record[6] = fmt.Sprintf("%.1f", *row.TotalHours)
		}
		cw.Write(record)
	}
	cw.Flush()
}

func (a *API) markAbsent(w http.ResponseWriter, r *http.Request) {
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := a.machine.Sweep(r.Context(), a.store, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "marked_absent": n})
}

// overrideAttendance is the supervisor manual path. The {id} segment is
// the user id, matching the day row's owner.
func (a *API) overrideAttendance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := validDate(pathDate(r))
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	switch req.Status {
	case database.StatusPresent, database.StatusAbsent, database.StatusPartial:
	default:
		writeError(w, errs.Invalid("status", "must be present, absent or partial"))
		return
	}

	day, err := a.store.SetAttendanceStatus(r.Context(), userID, date, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	a.bus.AttendanceUpdate(day)
	writeJSON(w, http.StatusOK, day)
}
