package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/config"
	"github.com/dockeep/dockeep/internal/database"
	"github.com/dockeep/dockeep/internal/handlers"
	middlewareCustom "github.com/dockeep/dockeep/internal/middleware"
	"github.com/dockeep/dockeep/internal/models"
	"github.com/dockeep/dockeep/internal/routes"
	"github.com/dockeep/dockeep/internal/services"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
)

// SentAlert represents a captured security alert message
type SentAlert struct {
	Kind  string // "lockout_warning" or "new_device_alert"
	To    string
	Name  string
	Extra string
}

// MockMailer captures security alerts for test assertions
type MockMailer struct {
	SentAlerts []SentAlert
	mu         sync.Mutex
}

// SendLockoutWarning records the alert
func (m *MockMailer) SendLockoutWarning(ctx context.Context, email, name string, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentAlerts = append(m.SentAlerts, SentAlert{
		Kind:  "lockout_warning",
		To:    email,
		Name:  name,
		Extra: window.String(),
	})
	return nil
}

// SendNewDeviceAlert records the alert
func (m *MockMailer) SendNewDeviceAlert(ctx context.Context, email, name string, device models.DeviceSignals, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentAlerts = append(m.SentAlerts, SentAlert{
		Kind:  "new_device_alert",
		To:    email,
		Name:  name,
		Extra: device.Platform,
	})
	return nil
}

// GetLastAlert returns the most recent alert sent
func (m *MockMailer) GetLastAlert() *SentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentAlerts) == 0 {
		return nil
	}
	return &m.SentAlerts[len(m.SentAlerts)-1]
}

// AlertCount returns how many alerts of the given kind were sent
func (m *MockMailer) AlertCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, a := range m.SentAlerts {
		if a.Kind == kind {
			count++
		}
	}
	return count
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	Pool   *database.DB
	Mailer *MockMailer
	Config *config.Config

	// Dependency references for inspection in tests
	CSRFManager *auth.CSRFTokenManager
	Notifier    *services.Notifier
	Limiter     *services.MemoryRateLimitStore
	logger      *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked mailer
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Create test config
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			CleanupInterval:    1 * time.Hour,
			CookieSecure:       false,
			CookieSameSite:     "strict",
		},
		Lockout: config.LockoutConfig{
			MaxAttempts:      5,
			Window:           15 * time.Minute,
			AttemptRetention: 30 * 24 * time.Hour,
		},
		Timing: config.TimingConfig{
			BaseDelayMs:    1,
			RandomDelayMs:  1,
			DelayOnSuccess: false,
		},
		TOTP: config.TOTPConfig{
			EncryptionKey: "0123456789abcdef0123456789abcdef",
			Issuer:        "DocKeepTest",
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{"127.0.0.1/32"},
		},
	}

	// Initialize repositories
	userRepo, revokeRepo, attemptRepo, deviceRepo := InitializeRepositories(db)

	// Create mock mailer
	mockMailer := &MockMailer{
		SentAlerts: []SentAlert{},
	}

	// Token and session plumbing
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	csrfManager := auth.NewCSRFTokenManager(cfg.Auth.RefreshTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)
	sessionGuard := auth.NewSessionGuard(tokenManager, revokeRepo, csrfManager, userRepo, logger, auditLogger)

	totpManager, err := auth.NewTOTPManager([]byte(cfg.TOTP.EncryptionKey), cfg.TOTP.Issuer)
	if err != nil {
		panic(fmt.Sprintf("failed to create TOTP manager: %v", err))
	}

	// Timing delay kept minimal so the suite stays fast
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Timing.BaseDelayMs,
		RandomDelayMs:  cfg.Timing.RandomDelayMs,
		DelayOnSuccess: cfg.Timing.DelayOnSuccess,
	})

	notifier := services.NewNotifier(mockMailer, cfg.Lockout.Window, logger, auditLogger)
	limiter := services.NewMemoryRateLimitStore(cfg.Lockout.Window, logger)

	// Initialize services
	userService := services.NewUserService(userRepo, logger, auditLogger)
	loginService := services.NewLoginService(
		userRepo,
		limiter,
		deviceRepo,
		notifier,
		attemptRepo,
		totpManager,
		timingDelay,
		services.LockoutConfig{
			MaxAttempts:      cfg.Lockout.MaxAttempts,
			WindowDuration:   cfg.Lockout.Window,
			AttemptRetention: cfg.Lockout.AttemptRetention,
		},
		logger,
		auditLogger,
	)
	adminService := services.NewAdminService(userRepo, revokeRepo, deviceRepo, attemptRepo, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
	}
	userHandler := handlers.NewUserHandler(userService)
	authHandler := handlers.NewAuthHandler(loginService, sessionGuard, userService, ipConfig, cookieConfig, int(cfg.Auth.RefreshTokenExpiry.Seconds()))
	adminHandler := handlers.NewAdminHandler(adminService)
	totpHandler := handlers.NewTOTPHandler(totpManager, userRepo)

	// Setup Chi router with middleware
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Setup routes using production pattern
	routes.RegisterRoutes(r, userHandler, authHandler, adminHandler, totpHandler, sessionGuard, userRepo, csrfManager, auth.RevocationConfig{}, ipConfig, logger)

	// Create httptest.Server
	server := httptest.NewServer(r)

	return &TestServer{
		Server:      server,
		Pool:        db,
		Mailer:      mockMailer,
		Config:      cfg,
		CSRFManager: csrfManager,
		Notifier:    notifier,
		Limiter:     limiter,
		logger:      logger,
	}
}

// Close shuts down the test server and drains pending alert sends
func (ts *TestServer) Close() {
	if ts.Notifier != nil {
		ts.Notifier.Wait()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if headers != nil {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractSessionFromResponse pulls the access/CSRF tokens and redirect target
// from a login response body, and the refresh token from the Set-Cookie
// headers.
func ExtractSessionFromResponse(resp *http.Response) (accessToken, refreshToken, csrfToken, redirect string, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if csrf, ok := authResp["csrf_token"].(string); ok {
		csrfToken = csrf
	}
	if target, ok := authResp["redirect"].(string); ok {
		redirect = target
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "refresh_token" {
			refreshToken = cookie.Value
		}
	}

	return
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
