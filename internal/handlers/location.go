package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
	"github.com/sitewatch/backend/internal/geo"
)

func (a *API) currentLocations(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.CurrentLocations(r.Context(), sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// locationUser resolves the target user for per-user spatial routes: the
// path id when present (ownership-checked), otherwise the actor.
func (a *API) locationUser(r *http.Request) (int64, error) {
	actor := identity(r)
	if raw, err := pathID(r, "id"); err == nil {
		if err := auth.Allow(auth.ActionRead, actor, raw); err != nil {
			return 0, err
		}
		return raw, nil
	}
	return actor.UserID, nil
}

func (a *API) locationHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := a.locationUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.LocationHistory(r.Context(), userID, sinceParam(r, 1), queryInt(r, "limit", 1000))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// locationTrack renders a movement track: the ordered fixes plus total
// distance covered.
func (a *API) locationTrack(w http.ResponseWriter, r *http.Request) {
	userID, err := a.locationUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.LocationHistory(r.Context(), userID, sinceParam(r, 1), queryInt(r, "limit", 2000))
	if err != nil {
		writeError(w, err)
		return
	}

	var distance float64
	for i := 1; i < len(rows); i++ {
		distance += geo.DistanceM(
			geo.Point{Lat: rows[i-1].Latitude, Lng: rows[i-1].Longitude},
			geo.Point{Lat: rows[i].Latitude, Lng: rows[i].Longitude},
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":          userID,
		"points":           rows,
		"total_distance_m": math.Round(distance),
		"point_count":      len(rows),
	})
}

// locationZone reports whether the user's latest fix lies within a circular
// zone given by ?lat, ?lng and ?radius_m.
func (a *API) locationZone(w http.ResponseWriter, r *http.Request) {
	userID, err := a.locationUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	radius, radErr := strconv.ParseFloat(r.URL.Query().Get("radius_m"), 64)
	if latErr != nil || lngErr != nil || radErr != nil || radius <= 0 {
		writeError(w, errs.Invalid("zone", "lat, lng and a positive radius_m are required"))
		return
	}

	rows, err := a.store.CurrentLocations(r.Context(), &userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(rows) == 0 {
		writeError(w, fmt.Errorf("no position for user %d: %w", userID, errs.ErrNotFound))
		return
	}

	fix := rows[0]
	d := geo.DistanceM(geo.Point{Lat: fix.Latitude, Lng: fix.Longitude}, geo.Point{Lat: lat, Lng: lng})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"location":   fix,
		"distance_m": math.Round(d),
		"inside":     d <= radius,
	})
}

func (a *API) locationSummary(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.CurrentLocations(r.Context(), sc)
	if err != nil {
		writeError(w, err)
		return
	}

	stale := 0
	cutoff := time.Now().UTC().Add(-15 * time.Minute)
	for _, row := range rows {
		if row.Timestamp.Before(cutoff) {
			stale++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positioned": len(rows),
		"fresh":      len(rows) - stale,
		"stale":      stale,
	})
}

// locationHeatmap buckets current positions onto a coarse grid (~100 m
// cells) for the dashboard density layer.
func (a *API) locationHeatmap(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.CurrentLocations(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}

	type cell struct {
		Lat   float64 `json:"lat"`
		Lng   float64 `json:"lng"`
		Count int     `json:"count"`
	}
	buckets := map[string]*cell{}
	for _, row := range rows {
		lat := math.Round(row.Latitude*1000) / 1000
		lng := math.Round(row.Longitude*1000) / 1000
		key := fmt.Sprintf("%.3f:%.3f", lat, lng)
		if c, ok := buckets[key]; ok {
			c.Count++
		} else {
			buckets[key] = &cell{Lat: lat, Lng: lng, Count: 1}
		}
	}

	cells := make([]cell, 0, len(buckets))
	for _, c := range buckets {
		cells = append(cells, *c)
	}
	writeJSON(w, http.StatusOK, cells)
}

type geofenceRequest struct {
	Polygon []geo.Point `json:"polygon"`
	UserIDs []int64     `json:"user_ids,omitempty"` // empty means everyone
}

// geofenceCheck evaluates which users' latest fixes fall inside an ad-hoc
// boundary.
func (a *API) geofenceCheck(w http.ResponseWriter, r *http.Request) {
	var req geofenceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Polygon) < 3 {
		writeError(w, errs.Invalid("polygon", "needs at least three vertices"))
		return
	}

	rows, err := a.store.CurrentLocations(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}

	wanted := map[int64]bool{}
	for _, id := range req.UserIDs {
		wanted[id] = true
	}

	poly := geo.Polygon(req.Polygon)
	type verdict struct {
		database.LocationRow
		Inside bool `json:"inside"`
	}
	var out []verdict
	for _, row := range rows {
		if len(wanted) > 0 && !wanted[row.UserID] {
			continue
		}
		out = append(out, verdict{
			LocationRow: row,
			Inside:      poly.Contains(geo.Point{Lat: row.Latitude, Lng: row.Longitude}),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
