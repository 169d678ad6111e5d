package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
)

// LoginCoordinator verifies credentials, enforces lockout, and runs the
// device-trust checks.
type LoginCoordinator interface {
	Login(ctx context.Context, email, password, origin string, signals models.DeviceSignals, totpCode string) (*models.User, error)
}

// SessionManager issues and tears down session material once a login has been
// verified.
type SessionManager interface {
	Authenticate(ctx context.Context, user *models.User) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, accessToken string) error
	LogoutAll(ctx context.Context, userID string) error
}

// RegistrationService creates new (unapproved) accounts.
type RegistrationService interface {
	CreateUser(user *models.User, password string) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	login        LoginCoordinator
	sessions     SessionManager
	registration RegistrationService
	ipConfig     *pkghttp.IPConfig
	cookieConfig auth.CookieConfig
	refreshTTL   int // seconds, for the refresh/CSRF cookie lifetime
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	login LoginCoordinator,
	sessions SessionManager,
	registration RegistrationService,
	ipConfig *pkghttp.IPConfig,
	cookieConfig auth.CookieConfig,
	refreshTTL int,
) *AuthHandler {
	return &AuthHandler{
		login:        login,
		sessions:     sessions,
		registration: registration,
		ipConfig:     ipConfig,
		cookieConfig: cookieConfig,
		refreshTTL:   refreshTTL,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code,omitempty" validate:"omitempty,len=6,numeric"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1"`
}

// RefreshTokenRequest represents the request body for token refresh. The body
// is optional; the refresh token cookie takes precedence.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse is returned on login and refresh.
type SessionResponse struct {
	AccessToken string        `json:"access_token"`
	CSRFToken   string        `json:"csrf_token"`
	Redirect    string        `json:"redirect"`
	User        *UserResponse `json:"user"`
}

// extractDeviceSignals collects the client hints the device fingerprint is
// derived from. All of them are client-controlled.
func extractDeviceSignals(r *http.Request) models.DeviceSignals {
	return models.DeviceSignals{
		UserAgent: r.Header.Get("User-Agent"),
		Platform:  r.Header.Get("Sec-CH-UA-Platform"),
		Location:  r.Header.Get("X-Timezone"),
	}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, session *auth.Session, status int) {
	auth.SetRefreshTokenCookie(w, session.RefreshToken, h.refreshTTL, h.cookieConfig)
	auth.SetCSRFTokenCookie(w, session.CSRFToken, h.refreshTTL, h.cookieConfig)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SessionResponse{
		AccessToken: session.AccessToken,
		CSRFToken:   session.CSRFToken,
		Redirect:    session.RedirectTarget,
		User:        ToUserResponse(session.User),
	})
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	origin := pkghttp.ExtractClientIP(r, h.ipConfig)
	signals := extractDeviceSignals(r)

	user, err := h.login.Login(r.Context(), req.Email, req.Password, origin, signals, req.TOTPCode)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.")
		case errors.Is(err, models.ErrPendingApproval):
			// Credentials were valid, so naming the real reason leaks nothing.
			pkghttp.WriteForbidden(w, "Account pending administrator approval")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	session, err := h.sessions.Authenticate(r.Context(), user)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.writeSession(w, session, http.StatusOK)
}

// Register handles user registration. New accounts start unapproved and
// cannot log in until an administrator approves them.
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user := &models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Name:     strings.TrimSpace(req.Name),
		Approved: false,
		Role:     models.RoleUser,
	}

	_, err := h.registration.CreateUser(user, req.Password)
	if err != nil {
		// Conflicts and weak passwords get the same response as success so
		// the endpoint cannot be used to enumerate accounts.
		if errors.Is(err, models.ErrConflict) || strings.Contains(err.Error(), "invalid password") {
			writeRegistrationAccepted(w)
			return
		}

		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeRegistrationAccepted(w)
}

func writeRegistrationAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Registration received. Your account will be reviewed by an administrator.",
	})
}

// RefreshToken handles token refresh
// @Summary Refresh access token
// @Accept json
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	// Cookie first, JSON body as a fallback for non-browser clients.
	refreshToken, err := auth.GetRefreshTokenCookie(r)
	if err != nil || refreshToken == "" {
		var req RefreshTokenRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr == nil {
			refreshToken = req.RefreshToken
		}
	}

	if refreshToken == "" {
		pkghttp.WriteBadRequest(w, "Missing refresh token")
		return
	}

	session, err := h.sessions.Refresh(r.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrPendingApproval):
			auth.ClearRefreshTokenCookie(w, h.cookieConfig)
			auth.ClearCSRFTokenCookie(w, h.cookieConfig)
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.writeSession(w, session, http.StatusOK)
}

// Logout handles user logout by revoking the access token
// @Summary User logout
// @Security BearerAuth
// @Produce json
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	accessToken := auth.GetTokenFromContext(r)
	if accessToken == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.Logout(r.Context(), accessToken); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	auth.ClearCSRFTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles logout from all devices
// @Summary Logout from all devices
// @Security BearerAuth
// @Produce json
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.LogoutAll(r.Context(), claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	auth.ClearCSRFTokenCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}
