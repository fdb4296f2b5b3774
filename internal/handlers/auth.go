package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/errs"
)

type registerRequest struct {
	auth.RegisterInput
	// Optional: pair a wearable at signup.
	DeviceSerial *string `json:"device_serial,omitempty"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.auth.Register(r.Context(), req.RegisterInput)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"user": user}
	if req.DeviceSerial != nil && strings.TrimSpace(*req.DeviceSerial) != "" {
		device, err := a.store.CreateDevice(r.Context(), strings.TrimSpace(*req.DeviceSerial), user.ID)
		if err != nil {
			// The account exists; surface the pairing failure explicitly.
			writeError(w, err)
			return
		}
		resp["device"] = device
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, pair, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          user,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, errs.Invalid("refresh_token", "is required"))
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
	})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := a.auth.ChangePassword(r.Context(), identity(r).UserID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	user, err := a.store.FindUserByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"user": user}
	device, err := a.store.FindDeviceByUser(r.Context(), id.UserID)
	switch {
	case err == nil:
		resp["device"] = device
	case errors.Is(err, errs.ErrNotFound):
		resp["device"] = nil
	default:
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) validateToken(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"user_id": id.UserID,
		"email":   id.Email,
		"role":    id.Role,
	})
}

// logout is client-side token disposal; the server keeps no session state.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
