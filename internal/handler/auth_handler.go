package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"lodge-api/internal/middleware"
	"lodge-api/internal/model"
	"lodge-api/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type tokenResponse struct {
	Success bool `json:"success"`
	model.TokenPair
}

type userResponse struct {
	Success bool              `json:"success"`
	User    model.SessionUser `json:"user"`
}

// Authenticate handles POST /api/auth/authenticate.
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req model.AuthenticateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email is required")
	}
	if req.Password == "" {
		missing = append(missing, "password is required")
	}
	if len(missing) > 0 {
		writePlain(w, http.StatusBadRequest, strings.Join(missing, ", "))
		return
	}

	pair, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true, TokenPair: pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.RefreshToken) == "" {
		writePlain(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true, TokenPair: pair})
}

// GetUser handles GET /api/auth/user.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writePlain(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writePlain(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.auth.Logout(r.Context(), claims.UserID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Email) == "" {
		writePlain(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

// SetPassword handles POST /api/auth/set-password.
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.SetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email is required")
	}
	if strings.TrimSpace(req.ResetToken) == "" {
		missing = append(missing, "reset_token is required")
	}
	if req.Password == "" {
		missing = append(missing, "password is required")
	}
	if len(missing) > 0 {
		writePlain(w, http.StatusBadRequest, strings.Join(missing, ", "))
		return
	}

	if err := h.auth.SetPassword(r.Context(), req.Email, req.ResetToken, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writePlain(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
