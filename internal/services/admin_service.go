package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dockeep/dockeep/internal/models"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
)

// AdminUserRepository is the subset of UserRepository methods needed by AdminService.
type AdminUserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListPendingApproval(ctx context.Context, limit, offset int) ([]*models.User, error)
	SetApproved(ctx context.Context, id string, approved bool) (*models.User, error)
}

// SessionRevoker invalidates all outstanding sessions for a user.
type SessionRevoker interface {
	RevokeAllUserTokens(ctx context.Context, userID, reason string) error
}

// DeviceForgetter drops the trusted-device list for a user.
type DeviceForgetter interface {
	DeleteForUser(ctx context.Context, userID string) error
}

// AttemptTrailReader exposes the login attempt audit trail to administrators.
type AttemptTrailReader interface {
	ListRecentByEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

// AdminService implements the administrator approval workflow: new accounts
// start unapproved and an admin either approves or suspends them. Suspension
// revokes every outstanding session and forgets the user's trusted devices.
type AdminService struct {
	users       AdminUserRepository
	revoker     SessionRevoker
	devices     DeviceForgetter
	attempts    AttemptTrailReader
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	users AdminUserRepository,
	revoker SessionRevoker,
	devices DeviceForgetter,
	attempts AttemptTrailReader,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AdminService {
	return &AdminService{
		users:       users,
		revoker:     revoker,
		devices:     devices,
		attempts:    attempts,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ListPendingUsers returns accounts awaiting approval, oldest first.
// limit is clamped to a maximum of 50.
func (s *AdminService) ListPendingUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.ListPendingApproval(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list pending users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// ApproveUser marks an account as approved so it can log in.
func (s *AdminService) ApproveUser(ctx context.Context, actorID, userID string) (*models.User, error) {
	user, err := s.users.SetApproved(ctx, userID, true)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to approve user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user approved", slog.String("user_id", userID), slog.String("actor_id", actorID))
	s.auditLogger.LogAdminAction(pkglogger.AuditEvent{
		EventType: "user_approved",
		UserID:    userID,
		ActorID:   actorID,
		Success:   true,
	})

	return user, nil
}

// SuspendUser withdraws approval. The guard's deferred check rejects the
// user's next request, sessions are revoked immediately, and the trusted
// device list is cleared so re-approval starts from a clean slate.
func (s *AdminService) SuspendUser(ctx context.Context, actorID, userID string) (*models.User, error) {
	user, err := s.users.SetApproved(ctx, userID, false)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to suspend user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.revoker.RevokeAllUserTokens(ctx, userID, "account suspended"); err != nil {
		s.logger.Error("failed to revoke sessions for suspended user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.devices.DeleteForUser(ctx, userID); err != nil {
		// Stale trust entries only mean a skipped alert after re-approval.
		s.logger.Error("failed to clear trusted devices", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("user suspended", slog.String("user_id", userID), slog.String("actor_id", actorID))
	s.auditLogger.LogAdminAction(pkglogger.AuditEvent{
		EventType: "user_suspended",
		UserID:    userID,
		ActorID:   actorID,
		Success:   true,
	})

	return user, nil
}

// RecentAttempts returns the newest entries in the login attempt trail for an
// email. limit is clamped to a maximum of 100.
func (s *AdminService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	attempts, err := s.attempts.ListRecentByEmail(ctx, email, limit)
	if err != nil {
		s.logger.Error("failed to list login attempts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return attempts, nil
}
