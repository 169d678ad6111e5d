package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dockeep/dockeep/internal/models"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
)

// TokenRevoker is the revocation-list store behind the session guard.
// User-level revocation invalidates every token issued before the revocation
// moment, so IsUserRevokedSince takes the token's issue time.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	IsUserRevokedSince(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// Session is the material handed to a client after authentication. The state
// of a live session is carried by the tokens themselves: valid tokens mean
// Authenticated, revoked or absent tokens mean Anonymous.
type Session struct {
	State          models.SessionState
	User           *models.User
	AccessToken    string
	RefreshToken   string
	CSRFToken      string
	RedirectTarget string
}

// SessionGuard owns session state transitions: Anonymous to Authenticated on
// login, Authenticated to Revoked when a deferred check fails, Revoked back to
// Anonymous once tokens are invalidated and the anti-forgery token rotated.
//
// The deferred approval check exists because approval can be withdrawn after
// a session was established; it runs on every authenticated-request boundary,
// not just at login.
type SessionGuard struct {
	tm          *TokenManager
	revoker     TokenRevoker
	csrf        *CSRFTokenManager
	users       UserRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewSessionGuard creates a new SessionGuard.
func NewSessionGuard(tm *TokenManager, revoker TokenRevoker, csrf *CSRFTokenManager, users UserRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionGuard {
	return &SessionGuard{
		tm:          tm,
		revoker:     revoker,
		csrf:        csrf,
		users:       users,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Authenticate transitions Anonymous to Authenticated: it issues the token
// pair and a CSRF token for a verified principal.
func (g *SessionGuard) Authenticate(ctx context.Context, user *models.User) (*Session, error) {
	accessToken, err := g.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		g.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := g.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		g.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	csrfToken, err := g.csrf.GenerateToken(user.ID)
	if err != nil {
		g.logger.Error("failed to generate csrf token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &Session{
		State:          models.SessionAuthenticated,
		User:           user,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		CSRFToken:      csrfToken,
		RedirectTarget: user.RedirectTarget(),
	}, nil
}

// EnsureApproved is the deferred per-request check. If the principal's
// approval has been withdrawn since login, the guard revokes every token the
// user holds, rotates their CSRF tokens, and reports ErrPendingApproval. The
// next request carries no valid session material and is Anonymous again.
func (g *SessionGuard) EnsureApproved(ctx context.Context, userID string) error {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		g.logger.Error("failed to load user for approval check", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.Approved {
		return nil
	}

	if err := g.Revoke(ctx, userID, "approval_withdrawn"); err != nil {
		g.logger.Error("failed to revoke session after approval check", slog.String("user_id", userID), slog.Any("error", err))
	}

	return models.ErrPendingApproval
}

// Revoke transitions Authenticated to Revoked: all of the user's tokens land
// on the revocation list and their CSRF tokens are rotated.
func (g *SessionGuard) Revoke(ctx context.Context, userID, reason string) error {
	if err := g.revoker.RevokeAllUserTokens(ctx, userID, reason); err != nil {
		return err
	}

	g.csrf.RotateUserTokens(userID)

	g.logger.Info("session revoked", slog.String("user_id", userID), slog.String("reason", reason))
	g.auditLogger.LogAccountAction("session_revoked", userID, "", map[string]string{"reason": reason})
	return nil
}

// Refresh exchanges a valid refresh token for a new session. The deferred
// approval check applies here too.
func (g *SessionGuard) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := g.tm.ValidateToken(refreshToken)
	if err != nil {
		g.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		g.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	revoked, err := g.isRevoked(ctx, claims)
	if err != nil {
		g.logger.Error("failed to check token revocation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		return nil, models.ErrUnauthorized
	}

	user, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		g.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.Approved {
		if err := g.Revoke(ctx, user.ID, "approval_withdrawn"); err != nil {
			g.logger.Error("failed to revoke session on refresh", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, models.ErrPendingApproval
	}

	// Tokens issued before a password change are dead.
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(*user.PasswordChangedAt) {
			g.logger.Info("token refresh blocked: issued before password change", slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
	}

	return g.Authenticate(ctx, user)
}

// isRevoked checks both the per-token and the user-level revocation lists.
func (g *SessionGuard) isRevoked(ctx context.Context, claims *models.TokenClaims) (bool, error) {
	if claims.ID != "" {
		revoked, err := g.revoker.IsTokenRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return revoked, err
		}
	}
	if claims.IssuedAt != nil {
		return g.revoker.IsUserRevokedSince(ctx, claims.UserID, claims.IssuedAt.Time)
	}
	return false, nil
}

// Logout revokes the presented access token.
func (g *SessionGuard) Logout(ctx context.Context, accessToken string) error {
	claims, err := g.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	err = g.revoker.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, claims.ExpiresAt.Time, "logout")
	if err != nil {
		g.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	g.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// LogoutAll revokes every token the user holds ("sign out of all devices").
func (g *SessionGuard) LogoutAll(ctx context.Context, userID string) error {
	if err := g.Revoke(ctx, userID, "logout_all"); err != nil {
		return models.ErrInternalServer
	}

	g.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	return nil
}
