package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the approval-workflow service contract.
type AdminServiceInterface interface {
	ListPendingUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	ApproveUser(ctx context.Context, actorID, userID string) (*models.User, error)
	SuspendUser(ctx context.Context, actorID, userID string) (*models.User, error)
	RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// AdminHandler handles admin approval and audit HTTP requests.
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// LoginAttemptResponse is one row of the attempt audit trail.
type LoginAttemptResponse struct {
	Email             string  `json:"email"`
	IPAddress         string  `json:"ip_address"`
	UserAgent         string  `json:"user_agent"`
	AttemptTime       string  `json:"attempt_time"`
	Success           bool    `json:"success"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	DeviceFingerprint string  `json:"device_fingerprint"`
}

// ListPendingUsers handles GET /admin/users/pending
// Accepts optional query params ?limit=N and ?offset=N.
func (h *AdminHandler) ListPendingUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	users, err := h.service.ListPendingUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list pending users")
		return
	}

	response := &ListUsersResponse{
		Users: make([]*UserResponse, len(users)),
		Total: len(users),
	}
	for i, user := range users {
		response.Users[i] = ToUserResponse(user)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ApproveUser handles POST /admin/users/{id}/approve
func (h *AdminHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, true)
}

// SuspendUser handles POST /admin/users/{id}/suspend
func (h *AdminHandler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, false)
}

func (h *AdminHandler) setApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	var user *models.User
	var err error
	if approve {
		user, err = h.service.ApproveUser(r.Context(), claims.UserID, userID)
	} else {
		user, err = h.service.SuspendUser(r.Context(), claims.UserID, userID)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ToUserResponse(user))
}

// GetLoginAttempts handles GET /admin/login-attempts?email=...&limit=N
func (h *AdminHandler) GetLoginAttempts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	attempts, err := h.service.RecentAttempts(r.Context(), email, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve login attempts")
		return
	}

	response := make([]LoginAttemptResponse, len(attempts))
	for i, a := range attempts {
		response[i] = LoginAttemptResponse{
			Email:             a.Email,
			IPAddress:         a.IPAddress,
			UserAgent:         a.UserAgent,
			AttemptTime:       a.AttemptTime.Format("2006-01-02T15:04:05Z07:00"),
			Success:           a.Success,
			FailureReason:     a.FailureReason,
			DeviceFingerprint: a.DeviceFingerprint,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
