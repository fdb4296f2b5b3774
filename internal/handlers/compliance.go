package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

func (a *API) listCompliance(w http.ResponseWriter, r *http.Request) {
	sc, err := scope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := a.store.ListCompliance(r.Context(), sc, false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) unreviewedCompliance(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.ListCompliance(r.Context(), nil, true, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) highRiskCompliance(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.ListCompliance(r.Context(), nil, false, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) complianceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.ComplianceStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) complianceTrends(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.ComplianceTrends(r.Context(), sinceParam(r, 30))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) getCompliance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.store.FindComplianceByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	actor := identity(r)
	if !actor.IsSupervisor() && rec.UserID != actor.UserID {
		writeError(w, errs.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type complianceRequest struct {
	UserID      int64  `json:"user_id"`
	Category    string `json:"category"`
	RiskLevel   string `json:"risk_level"`
	Description string `json:"description"`
}

func (a *API) createCompliance(w http.ResponseWriter, r *http.Request) {
	var req complianceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}

	fields := map[string]string{}
	if req.UserID <= 0 {
		fields["user_id"] = "is required"
	}
	if strings.TrimSpace(req.Category) == "" {
		fields["category"] = "is required"
	}
	switch req.RiskLevel {
	case database.SeverityLow, database.SeverityMedium, database.SeverityHigh, database.SeverityCritical:
	default:
		fields["risk_level"] = "must be low, medium, high or critical"
	}
	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = "is required"
	}
	if len(fields) > 0 {
		writeError(w, &errs.ValidationError{Fields: fields})
		return
	}

	rec, err := a.store.CreateCompliance(r.Context(), database.ComplianceRecord{
		UserID:      req.UserID,
		Category:    strings.TrimSpace(req.Category),
		RiskLevel:   req.RiskLevel,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) reviewCompliance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.store.ReviewCompliance(r.Context(), id, identity(r).UserID, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.store.FindComplianceByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) assignCompliance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AssignedTo int64 `json:"assigned_to"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AssignedTo <= 0 {
		writeError(w, errs.Invalid("assigned_to", "is required"))
		return
	}

	if err := a.store.AssignCompliance(r.Context(), id, req.AssignedTo); err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.store.FindComplianceByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
