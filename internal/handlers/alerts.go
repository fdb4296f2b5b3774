package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

// alertFilterFromQuery builds the list filter; the lifecycle manager
// applies role scoping on top.
func alertFilterFromQuery(r *http.Request) database.AlertFilter {
	q := r.URL.Query()
	f := database.AlertFilter{
		UserID:   queryUserID(r),
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	}
	if raw := q.Get("acknowledged"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			f.Acknowledged = &v
		}
	}
	if raw := q.Get("resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			f.Resolved = &v
		}
	}
	if raw := q.Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Since = &t
		}
	}
	if raw := q.Get("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Until = &t
		}
	}
	if raw := q.Get("device_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			f.DeviceID = &id
		}
	}
	return f
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	rows, err := a.alerts.List(r.Context(), identity(r), alertFilterFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) unacknowledgedAlerts(w http.ResponseWriter, r *http.Request) {
	f := alertFilterFromQuery(r)
	unacked := false
	f.Acknowledged = &unacked

	rows, err := a.alerts.List(r.Context(), identity(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) criticalAlerts(w http.ResponseWriter, r *http.Request) {
	f := alertFilterFromQuery(r)
	f.Severity = database.SeverityCritical
	unresolved := false
	f.Resolved = &unresolved

	rows, err := a.alerts.List(r.Context(), identity(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) alertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.alerts.Stats(r.Context(), identity(r), queryUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) alertTrends(w http.ResponseWriter, r *http.Request) {
	rows, err := a.alerts.Trends(r.Context(), identity(r), queryUserID(r), sinceParam(r, 7))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) alertsHourly(w http.ResponseWriter, r *http.Request) {
	date := pathDate(r)
	dayStart, err := time.Parse(database.DateLayout, date)
	if err != nil {
		writeError(w, errs.Invalid("date", "must be YYYY-MM-DD"))
		return
	}

	rows, err := a.alerts.Hourly(r.Context(), identity(r), queryUserID(r), dayStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) alertsByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	f := alertFilterFromQuery(r)
	f.UserID = &userID

	rows, err := a.alerts.List(r.Context(), identity(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	alert, err := a.alerts.Get(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	alert, err := a.alerts.Acknowledge(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) bulkAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AlertIDs []int64 `json:"alert_ids"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}

	acked, err := a.alerts.BulkAcknowledge(r.Context(), identity(r), req.AlertIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": len(acked), "alerts": acked})
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	alert, err := a.alerts.Resolve(r.Context(), identity(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) cleanupAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := a.alerts.Cleanup(r.Context(), identity(r), a.cfg.AlertsRetentionDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (a *API) clearAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := a.alerts.Clear(r.Context(), identity(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
