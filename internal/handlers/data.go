package handlers

import (
	"net/http"

	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/ingest"
)

// ingestReading is the device-facing entry point. Devices are not bearer
// clients; the serial inside the payload is the credential, and rejection
// detail never reveals token machinery.
func (a *API) ingestReading(w http.ResponseWriter, r *http.Request) {
	payload, err := ingest.Decode(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := a.pipeline.Ingest(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.IsSupervisor() {
		devices, err := a.store.ListDevices(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
		return
	}

	// Employees see their own device only.
	device, err := a.store.FindDeviceByUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, []database.Device{*device})
}

func (a *API) listEmployees(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if !id.IsSupervisor() {
		user, err := a.store.FindUserByID(r.Context(), id.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []database.User{*user})
		return
	}

	users, err := a.store.ListUsers(r.Context(), database.RoleEmployee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
