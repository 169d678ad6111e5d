package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
)

// TOTPUserStore is the user persistence needed by authenticator enrollment.
type TOTPUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
}

// TOTPHandler handles authenticator enrollment for the step-up login factor.
type TOTPHandler struct {
	manager *auth.TOTPManager
	users   TOTPUserStore
}

// NewTOTPHandler creates a new TOTPHandler.
func NewTOTPHandler(manager *auth.TOTPManager, users TOTPUserStore) *TOTPHandler {
	return &TOTPHandler{manager: manager, users: users}
}

// EnrollResponse carries the one-time provisioning material.
type EnrollResponse struct {
	Secret    string `json:"secret"`
	QRDataURL string `json:"qr_data_url"`
}

// ActivateTOTPRequest represents the request body for activating an authenticator
type ActivateTOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Enroll handles POST /auth/totp/enroll. The secret is stored encrypted but
// the factor stays inactive until a code proves the authenticator works.
func (h *TOTPHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if user.TOTPEnabled {
		pkghttp.WriteConflict(w, "An authenticator is already active for this account")
		return
	}

	enrollment, err := h.manager.GenerateEnrollment(user.Email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	user.TOTPSecretEnc = enrollment.SecretEnc
	user.TOTPSecretNonce = enrollment.SecretNonce
	user.TOTPEnabled = false
	if _, err := h.users.Update(r.Context(), user.ID, user); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(EnrollResponse{
		Secret:    enrollment.Secret,
		QRDataURL: enrollment.QRDataURL,
	})
}

// Activate handles POST /auth/totp/activate. A valid code flips the factor on;
// every subsequent login then requires it.
func (h *TOTPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ActivateTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if len(user.TOTPSecretEnc) == 0 {
		pkghttp.WriteBadRequest(w, "No pending authenticator enrollment")
		return
	}

	valid, err := h.manager.VerifyCode(user, req.Code)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !valid {
		pkghttp.WriteUnauthorized(w, "Invalid authenticator code")
		return
	}

	user.TOTPEnabled = true
	if _, err := h.users.Update(r.Context(), user.ID, user); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Authenticator activated"})
}

// Disable handles DELETE /auth/totp. Removes the factor and its secret.
func (h *TOTPHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	user.TOTPEnabled = false
	user.TOTPSecretEnc = nil
	user.TOTPSecretNonce = nil
	if _, err := h.users.Update(r.Context(), user.ID, user); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
