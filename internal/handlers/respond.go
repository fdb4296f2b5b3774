// Package handlers is the HTTP facade: it parses and validates input,
// enforces the authorisation predicate, calls one core component, and
// writes the JSON envelope. No business state lives here.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sitewatch/backend/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// errorBody is the failure envelope: {error, details?}.
type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError maps the error taxonomy onto status codes in one place.
// Unexpected errors are logged with detail but answered opaquely.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "validation failed",
			Details: errs.FieldsOf(err),
		})
	case errors.Is(err, errs.ErrStorageUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
	default:
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decodeStrict parses a JSON body rejecting unknown keys.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// pathID extracts a numeric path variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// pathDate returns the raw {date} path variable; callers validate layout.
func pathDate(r *http.Request) string {
	return mux.Vars(r)["date"]
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

// queryUserID reads an optional ?user_id for supervisor scoping.
func queryUserID(r *http.Request) *int64 {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return &id
	}
	return nil
}

// sinceParam resolves ?days (default fallback) into a UTC cutoff.
func sinceParam(r *http.Request, fallbackDays int) time.Time {
	days := queryInt(r, "days", fallbackDays)
	if days <= 0 {
		days = fallbackDays
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}
