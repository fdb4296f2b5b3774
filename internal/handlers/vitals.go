package handlers

import (
	"net/http"
	"time"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/errs"
)

func (a *API) latestVitals(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.LatestVitals(r.Context(), sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// vitalHistory serves one user's readings. Employees are pinned to
// themselves; supervisors pick a user with ?user_id.
func (a *API) vitalHistory(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	userID := actor.UserID
	if requested := queryUserID(r); requested != nil {
		if err := auth.Allow(auth.ActionRead, actor, *requested); err != nil {
			writeError(w, err)
			return
		}
		userID = *requested
	} else if actor.IsSupervisor() {
		writeError(w, errs.Invalid("user_id", "is required"))
		return
	}

	since := sinceParam(r, 1)
	until := time.Now().UTC()
	if raw := r.URL.Query().Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errs.Invalid("until", "must be RFC 3339"))
			return
		}
		until = t
	}

	rows, err := a.store.VitalHistory(r.Context(), userID, since, until, queryInt(r, "limit", 500))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) vitalsByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	actor := identity(r)
	if !actor.IsSupervisor() {
		device, err := a.store.FindDeviceByUser(r.Context(), actor.UserID)
		if err != nil || device.ID != deviceID {
			writeError(w, errs.ErrForbidden)
			return
		}
	}

	rows, err := a.store.VitalsByDevice(r.Context(), deviceID, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) abnormalVitals(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.AbnormalVitals(r.Context(), sc, sinceParam(r, 1), queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) vitalStats(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.VitalStats(r.Context(), sc, sinceParam(r, 7))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// vitalTrends buckets one user's readings by hour. Without a path id the
// actor's own trend is served.
func (a *API) vitalTrends(w http.ResponseWriter, r *http.Request) {
	actor := identity(r)
	userID := actor.UserID
	if raw, err := pathID(r, "id"); err == nil {
		if err := auth.Allow(auth.ActionRead, actor, raw); err != nil {
			writeError(w, err)
			return
		}
		userID = raw
	}

	rows, err := a.store.VitalTrends(r.Context(), userID, sinceParam(r, 1))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) vitalSummary(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	latest, err := a.store.LatestVitals(r.Context(), sc)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := a.store.VitalStats(r.Context(), sc, sinceParam(r, 1))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"latest": latest,
		"stats":  stats,
	})
}

func (a *API) cleanupVitals(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.VitalsRetentionDays)
	n, err := a.store.CleanupVitals(r.Context(), cutoff)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "cutoff": cutoff})
}

func (a *API) clearVitals(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.ClearVitals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
