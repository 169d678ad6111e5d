package routes

import (
	"log/slog"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/handlers"
	"github.com/dockeep/dockeep/internal/middleware"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.UserHandler,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	totpHandler *handlers.TOTPHandler,
	guard *auth.SessionGuard,
	userRepo auth.UserRepository,
	csrfManager *auth.CSRFTokenManager,
	revocationConfig auth.RevocationConfig,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) {
	// Tight per-IP limits on the unauthenticated endpoints; the login lockout
	// counter is separate and keyed by email/IP.
	authRateLimit := middleware.DefaultAuthRateLimit()
	userRateLimit := middleware.DefaultAuthenticatedRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(authRateLimit, ipConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(authRateLimit, ipConfig)).Post("/auth/register", authHandler.Register)
	router.With(
		middleware.RateLimitByIP(authRateLimit, ipConfig),
		middleware.RefreshCSRF(csrfManager, logger),
	).Post("/auth/refresh", authHandler.RefreshToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.GuardMiddleware(guard, revocationConfig))

		// Session teardown
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)

		// Authenticator enrollment for the step-up login factor
		r.Post("/auth/totp/enroll", totpHandler.Enroll)
		r.Post("/auth/totp/activate", totpHandler.Activate)
		r.Delete("/auth/totp", totpHandler.Disable)

		// Any authenticated user (self or admin, enforced in the handler)
		r.With(middleware.RateLimitByUserID(userRateLimit, "read")).Get("/users/{id}", userHandler.GetUser)
		r.With(middleware.RateLimitByUserID(userRateLimit, "write")).Put("/users/{id}", userHandler.UpdateUser)
		r.With(middleware.RateLimitByUserID(userRateLimit, "write")).Put("/users/{id}/password", userHandler.ChangePassword)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, models.RoleAdmin))
			r.Use(middleware.RateLimitByUserID(userRateLimit, "admin"))

			r.Get("/users", userHandler.ListUsers)
			r.Post("/users", userHandler.CreateUser)
			r.Delete("/users/{id}", userHandler.DeleteUser)

			// Approval workflow and the login attempt audit trail
			r.Get("/admin/users/pending", adminHandler.ListPendingUsers)
			r.Post("/admin/users/{id}/approve", adminHandler.ApproveUser)
			r.Post("/admin/users/{id}/suspend", adminHandler.SuspendUser)
			r.Get("/admin/login-attempts", adminHandler.GetLoginAttempts)
		})
	})
}
