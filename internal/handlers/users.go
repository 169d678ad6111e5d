package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUserByID(id string) (*models.User, error)
	ListUsers(limit, offset int) ([]*models.User, error)
	CreateUser(user *models.User, password string) (*models.User, error)
	UpdateUser(id string, user *models.User) (*models.User, error)
	ChangePassword(id, currentPassword, newPassword, origin string) error
	DeleteUser(id string) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Request/Response DTOs

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user record-admin admin"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name string `json:"name" validate:"omitempty,min=1"`
	Role string `json:"role" validate:"omitempty,oneof=user record-admin admin"`
}

// ChangePasswordRequest represents the request body for changing a password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Approved    bool   `json:"approved"`
	Premium     bool   `json:"premium"`
	TOTPEnabled bool   `json:"totp_enabled"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ListUsersResponse represents a list of users
type ListUsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

// ToUserResponse converts a user model to a response DTO
func ToUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Approved:    user.Approved,
		Premium:     user.Premium,
		TOTPEnabled: user.TOTPEnabled,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GetUser retrieves a user by ID
//
// @Summary Get user by ID
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	// Check resource-level authorization
	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "You cannot access this resource")
		return
	}

	user, err := h.service.GetUserByID(userID)
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

// ListUsers retrieves a list of users with pagination
//
// @Summary List users
// @Param limit query int false "Limit (default 10)" default(10)
// @Param offset query int false "Offset (default 0)" default(0)
// @Produce json
// @Success 200 {object} ListUsersResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 10
	offset := 0

	// Parse query parameters
	if l := r.URL.Query().Get("limit"); l != "" {
		_, err := parseIntParam(l, &limit, 1, 100)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		_, err := parseIntParam(o, &offset, 0, 10000)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	users, err := h.service.ListUsers(limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
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

// CreateUser creates a new user
//
// @Summary Create a new user
// @Accept json
// @Param request body CreateUserRequest true "Create user request"
// @Produce json
// @Success 201 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Validate request
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	// Normalize email
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// Create user model
	user := &models.User{
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
		Role:  req.Role,
	}

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	// Create user in service (pass password)
	createdUser, err := h.service.CreateUser(user, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "User already exists")
			return
		}
		// Check if it's a password validation error
		if strings.Contains(err.Error(), "password requirements not met") {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ToUserResponse(createdUser))
}

// UpdateUser updates an existing user
//
// @Summary Update a user
// @Param id path string true "User ID"
// @Accept json
// @Param request body UpdateUserRequest true "Update user request"
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	// Check resource-level authorization
	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "You cannot access this resource")
		return
	}

	var req UpdateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Validate request
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.Role != "" {
		if err := h.checkRoleChange(r, userID); err != nil {
			pkghttp.WriteForbidden(w, err.Error())
			return
		}
	}

	// Create update model with only provided fields
	user := &models.User{
		ID: userID,
	}

	if req.Name != "" {
		user.Name = strings.TrimSpace(req.Name)
	}

	if req.Role != "" {
		user.Role = req.Role
	}

	// Update user in service
	updatedUser, err := h.service.UpdateUser(userID, user)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ToUserResponse(updatedUser))
}

// ChangePassword replaces the caller's password. Only the account owner may
// change it, and the current password must be supplied. Refresh tokens issued
// before the change stop working once it succeeds.
//
// @Summary Change own password
// @Param id path string true "User ID"
// @Accept json
// @Param request body ChangePasswordRequest true "Change password request"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/{id}/password [put]
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if claims.UserID != userID {
		pkghttp.WriteForbidden(w, "You can only change your own password")
		return
	}

	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	origin := pkghttp.ExtractClientIP(r, nil)

	if err := h.service.ChangePassword(userID, req.CurrentPassword, req.NewPassword, origin); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case strings.Contains(err.Error(), "invalid password"):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser deletes a user
//
// @Summary Delete a user
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	err := h.service.DeleteUser(userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

// checkUserAccess verifies that the authenticated user can access the requested resource
// Allows access if: user is accessing their own data OR user is admin
func (h *UserHandler) checkUserAccess(r *http.Request, requestedUserID string) error {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return errors.New("user not found in context")
	}

	// User can access their own data
	if claims.UserID == requestedUserID {
		return nil
	}

	// Admin can access any user
	user, err := h.service.GetUserByID(claims.UserID)
	if err != nil {
		return err
	}

	if user.Role == models.RoleAdmin {
		return nil
	}

	return errors.New("insufficient permissions")
}

// checkRoleChange rejects privilege escalation through the update endpoint.
// Nobody may change their own role, and only admins may change anyone else's.
func (h *UserHandler) checkRoleChange(r *http.Request, targetUserID string) error {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return errors.New("role changes require authentication")
	}

	if claims.UserID == targetUserID {
		return errors.New("you cannot change your own role")
	}

	actor, err := h.service.GetUserByID(claims.UserID)
	if err != nil {
		return errors.New("role changes require admin privileges")
	}

	if actor.Role != models.RoleAdmin {
		return errors.New("role changes require admin privileges")
	}

	return nil
}

// parseIntParam parses and validates an integer parameter
func parseIntParam(value string, dest *int, min, max int) (int, error) {
	n := 0
	_, err := scanInt(value, &n)
	if err != nil {
		return 0, err
	}

	if n < min || n > max {
		return 0, errors.New("parameter out of range")
	}

	*dest = n
	return n, nil
}

// scanInt is a helper to parse an integer from a string
func scanInt(s string, dest *int) (int, error) {
	err := json.Unmarshal([]byte(s), dest)
	return *dest, err
}
