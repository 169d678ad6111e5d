package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkgauth "github.com/dockeep/dockeep/pkg/auth"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
)

// LoginAttemptRecorder appends rows to the persistent attempt audit trail.
type LoginAttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// TOTPVerifier checks a step-up code for a user with an enrolled
// authenticator.
type TOTPVerifier interface {
	VerifyCode(user *models.User, code string) (bool, error)
}

// dummyHash is compared against when the email is unknown so that lookup
// misses and password mismatches take similar time.
const dummyHash = "$2a$14$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Failure reasons stored on attempt-trail rows. recordAttempt is the only
// writer of the trail.
const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonInvalidTOTP        = "invalid_totp"
	reasonRateLimited        = "rate_limited"
	reasonPendingApproval    = "pending_approval"
)

// LoginService coordinates a login attempt: lockout check, credential
// verification, device trust, alert dispatch, and the post-login redirect
// decision. It is the only writer of the rate-limit store.
type LoginService struct {
	users            UserRepository
	limiter          RateLimitStore
	devices          DeviceTrustStore
	notifier         *Notifier
	attempts         LoginAttemptRecorder
	totp             TOTPVerifier
	timing           *auth.TimingDelay
	lockout          LockoutConfig
	logger           *slog.Logger
	auditLogger      *pkglogger.AuditLogger
	attemptRetention time.Duration
}

// NewLoginService creates a new LoginService.
func NewLoginService(
	users UserRepository,
	limiter RateLimitStore,
	devices DeviceTrustStore,
	notifier *Notifier,
	attempts LoginAttemptRecorder,
	totp TOTPVerifier,
	timing *auth.TimingDelay,
	lockout LockoutConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginService {
	retention := lockout.AttemptRetention
	if retention <= 0 {
		retention = 2 * lockout.WindowDuration
	}

	return &LoginService{
		users:            users,
		limiter:          limiter,
		devices:          devices,
		notifier:         notifier,
		attempts:         attempts,
		totp:             totp,
		timing:           timing,
		lockout:          lockout,
		logger:           logger,
		auditLogger:      auditLogger,
		attemptRetention: retention,
	}
}

// Login verifies the presented credentials and returns the authenticated
// user. origin is the client network address; signals are the device hints
// the fingerprint is derived from. totpCode may be empty for users without an
// enrolled authenticator.
//
// Failure cases return one of models.ErrRateLimited,
// models.ErrInvalidCredentials, or models.ErrPendingApproval; nothing else is
// surfaced so callers cannot distinguish an unknown email from a wrong
// password.
func (s *LoginService) Login(ctx context.Context, email, password, origin string, signals models.DeviceSignals, totpCode string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrInvalidCredentials
	}

	key := models.AttemptKey{Email: email, Origin: origin}

	// 1. Already locked for this window. The warning was sent on the attempt
	// that crossed the threshold, so nothing is re-sent here.
	if s.limiter.TooMany(key, s.lockout.MaxAttempts) {
		s.logger.Info("login blocked: rate limited", slog.String("origin", origin))
		s.recordAttempt(ctx, email, origin, signals, false, reasonRateLimited)
		return nil, models.ErrRateLimited
	}

	// 2. Principal lookup. Compare against a dummy hash on a miss so the two
	// paths take similar time.
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.ComparePassword(dummyHash, password)
			s.failAttempt(ctx, key, nil, origin, signals, reasonInvalidCredentials)
			s.timing.Wait(false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// 3. Password check.
	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.failAttempt(ctx, key, user, origin, signals, reasonInvalidCredentials)
		s.timing.Wait(false)
		return nil, models.ErrInvalidCredentials
	}

	// Step-up for enrolled authenticators. A wrong or missing code counts as
	// a failed attempt; a lockout warning may fire here too.
	if user.TOTPEnabled {
		valid, err := s.totp.VerifyCode(user, totpCode)
		if err != nil {
			s.logger.Error("totp verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !valid {
			s.failAttempt(ctx, key, user, origin, signals, reasonInvalidTOTP)
			s.timing.Wait(false)
			return nil, models.ErrInvalidCredentials
		}
	}

	// 4. Credentials verified: this window's counter is done.
	s.limiter.Reset(key)

	if !user.Approved {
		s.logger.Info("login blocked: account pending approval", slog.String("user_id", user.ID))
		s.recordAttempt(ctx, email, origin, signals, false, reasonPendingApproval)
		return nil, models.ErrPendingApproval
	}

	// 5. Device trust. Store errors are logged and ignored: an alert that
	// fires twice is better than a blocked login.
	fingerprint := DeviceFingerprint(signals)
	known, err := s.devices.IsKnown(ctx, user.ID, fingerprint)
	if err != nil {
		s.logger.Error("device trust lookup failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	if err == nil && !known {
		if err := s.devices.Remember(ctx, user.ID, fingerprint); err != nil {
			s.logger.Error("failed to remember device", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.notifier.NewDeviceAlert(user, signals)
	}

	s.recordAttempt(ctx, email, origin, signals, true, "")
	s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("role", user.Role))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: origin,
		UserAgent: signals.UserAgent,
		Success:   true,
	})

	// 6. The redirect target follows purely from the role.
	return user, nil
}

// failAttempt counts a failed attempt against key and fires the lockout
// warning if this attempt is the one that crossed the threshold. Gating on
// the post-increment count means exactly one concurrent attempt observes the
// crossing.
func (s *LoginService) failAttempt(ctx context.Context, key models.AttemptKey, user *models.User, origin string, signals models.DeviceSignals, reason string) {
	count := s.limiter.RecordAttempt(key)

	s.logger.Info("login failed",
		slog.String("reason", reason),
		slog.Int("attempt", count))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     origin,
		UserAgent:     signals.UserAgent,
		FailureReason: reason,
		Success:       false,
	})

	if count == s.lockout.MaxAttempts && user != nil {
		s.notifier.LockoutWarning(user, origin)
	}

	s.recordAttempt(ctx, key.Email, origin, signals, false, reason)
}

// recordAttempt appends to the persistent audit trail. Trail failures never
// affect the login outcome.
func (s *LoginService) recordAttempt(ctx context.Context, email, origin string, signals models.DeviceSignals, success bool, reason string) {
	if s.attempts == nil {
		return
	}

	attempt := &models.LoginAttempt{
		Email:             email,
		IPAddress:         origin,
		UserAgent:         signals.UserAgent,
		Success:           success,
		DeviceFingerprint: DeviceFingerprint(signals),
		ExpiresAt:         time.Now().Add(s.attemptRetention),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}
}
