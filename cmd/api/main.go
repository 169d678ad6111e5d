package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/background"
	"github.com/dockeep/dockeep/internal/config"
	"github.com/dockeep/dockeep/internal/database"
	"github.com/dockeep/dockeep/internal/handlers"
	middlewareCustom "github.com/dockeep/dockeep/internal/middleware"
	"github.com/dockeep/dockeep/internal/models"
	"github.com/dockeep/dockeep/internal/repositories"
	"github.com/dockeep/dockeep/internal/routes"
	"github.com/dockeep/dockeep/internal/services"
	pkgauth "github.com/dockeep/dockeep/pkg/auth"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	deviceRepo := repositories.NewDeviceRecordRepository(db)

	// Token and session plumbing
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	csrfManager := auth.NewCSRFTokenManager(cfg.Auth.RefreshTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)
	sessionGuard := auth.NewSessionGuard(tokenManager, revokeRepo, csrfManager, userRepo, logger, auditLogger)

	totpManager, err := newTOTPManager(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize authenticator support", slog.Any("error", err))
		os.Exit(1)
	}

	// Timing padding for credential checks
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Timing.BaseDelayMs,
		RandomDelayMs:  cfg.Timing.RandomDelayMs,
		DelayOnSuccess: cfg.Timing.DelayOnSuccess,
	})

	// Security alert dispatch
	var mailer services.Mailer
	if cfg.Email.AlertsEnabled {
		sesMailer, err := services.NewAWSSESMailer(cfg.Email.SESRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize SES mailer", slog.Any("error", err))
			os.Exit(1)
		}
		mailer = sesMailer
	} else {
		logger.Info("email alerts disabled, security alerts will be logged only")
		mailer = services.NewLogMailer(logger)
	}
	notifier := services.NewNotifier(mailer, cfg.Lockout.Window, logger, auditLogger)

	// Failed-attempt counters for the lockout window
	limiter := services.NewMemoryRateLimitStore(cfg.Lockout.Window, logger)

	// Services
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

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
	}
	authHandler := handlers.NewAuthHandler(loginService, sessionGuard, userService, ipConfig, cookieConfig, int(cfg.Auth.RefreshTokenExpiry.Seconds()))
	userHandler := handlers.NewUserHandler(userService)
	adminHandler := handlers.NewAdminHandler(adminService)
	totpHandler := handlers.NewTOTPHandler(totpManager, userRepo)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	revocationConfig := auth.RevocationConfig{FailClosed: cfg.Auth.RevocationFailClosed}
	routes.RegisterRoutes(router, userHandler, authHandler, adminHandler, totpHandler, sessionGuard, userRepo, csrfManager, revocationConfig, ipConfig, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background cleanup of revoked tokens, expired attempt rows, and
	// stale lockout counters
	cleanupManager := background.NewCleanupManager(revokeRepo, attemptRepo, limiter, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let in-flight alert emails drain before exiting
	notifier.Wait()

	logger.Info("server stopped gracefully")
}

// newTOTPManager builds the authenticator manager from config. Outside
// production a missing encryption key falls back to an ephemeral one so the
// server still starts; enrollments then do not survive a restart.
func newTOTPManager(cfg *config.Config, logger *slog.Logger) (*auth.TOTPManager, error) {
	key := []byte(cfg.TOTP.EncryptionKey)
	if len(key) == 0 {
		if cfg.Server.Env == "production" {
			return nil, errors.New("TOTP_ENCRYPTION_KEY is required in production")
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral TOTP key: %w", err)
		}
		logger.Warn("TOTP_ENCRYPTION_KEY not set, using ephemeral key; authenticator enrollments will not survive a restart")
	}
	return auth.NewTOTPManager(key, cfg.TOTP.Issuer)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin user. The bootstrap admin is approved by definition; there
	// is nobody else to approve it.
	now := time.Now()
	admin := &models.User{
		Email:             adminEmail,
		PasswordHash:      hashedPassword,
		Name:              "Admin",
		Role:              models.RoleAdmin,
		Approved:          true,
		PasswordChangedAt: &now,
	}

	_, err = userRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
