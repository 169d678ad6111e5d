package auth_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkglogger "github.com/dockeep/dockeep/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRevoker is an in-memory revocation list for tests
type memoryRevoker struct {
	mu      sync.Mutex
	byJTI   map[string]bool
	byUser  map[string]bool
	reasons []string
}

func newMemoryRevoker() *memoryRevoker {
	return &memoryRevoker{byJTI: make(map[string]bool), byUser: make(map[string]bool)}
}

func (m *memoryRevoker) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byJTI[jti] = true
	m.reasons = append(m.reasons, reason)
	return nil
}

func (m *memoryRevoker) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[userID] = true
	m.reasons = append(m.reasons, reason)
	return nil
}

func (m *memoryRevoker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byJTI[jti], nil
}

func (m *memoryRevoker) IsUserRevokedSince(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byUser[userID], nil
}

// userRevoked reports whether RevokeAllUserTokens was called for userID
func (m *memoryRevoker) userRevoked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byUser[userID]
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubUserRepo) setApproved(id string, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Approved = approved
}

func newTestGuard(t *testing.T, users map[string]*models.User) (*auth.SessionGuard, *memoryRevoker, *stubUserRepo) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tm := auth.NewTokenManager("test-secret-that-is-long-enough", 15*time.Minute, 7*24*time.Hour)
	revoker := newMemoryRevoker()
	repo := &stubUserRepo{users: users}
	guard := auth.NewSessionGuard(tm, revoker, auth.NewCSRFTokenManager(time.Hour), repo, logger, pkglogger.NewAuditLogger(logger))
	return guard, revoker, repo
}

func approvedUser(id string) *models.User {
	return &models.User{
		ID:       id,
		Email:    id + "@example.com",
		Name:     "Test User",
		Approved: true,
		Role:     models.RoleUser,
	}
}

func TestSessionGuard_AuthenticateIssuesSessionMaterial(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, models.SessionAuthenticated, session.State)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.NotEmpty(t, session.CSRFToken)
	assert.Equal(t, "/dashboard", session.RedirectTarget)
}

func TestSessionGuard_RedirectTargetFollowsRole(t *testing.T) {
	cases := map[string]string{
		models.RoleAdmin:       "/admin",
		models.RoleRecordAdmin: "/records",
		models.RoleUser:        "/dashboard",
	}

	for role, want := range cases {
		user := approvedUser("user_" + role)
		user.Role = role
		guard, _, _ := newTestGuard(t, map[string]*models.User{user.ID: user})

		session, err := guard.Authenticate(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, want, session.RedirectTarget)
	}
}

func TestSessionGuard_EnsureApproved_PassesForApprovedUser(t *testing.T) {
	user := approvedUser("user_1")
	guard, revoker, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	err := guard.EnsureApproved(context.Background(), "user_1")
	assert.NoError(t, err)
	assert.False(t, revoker.userRevoked("user_1"))
}

func TestSessionGuard_EnsureApproved_RevokesWhenApprovalWithdrawn(t *testing.T) {
	user := approvedUser("user_1")
	guard, revoker, repo := newTestGuard(t, map[string]*models.User{"user_1": user})

	// Session established while approved, then approval withdrawn.
	_, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)
	repo.setApproved("user_1", false)

	err = guard.EnsureApproved(context.Background(), "user_1")
	assert.ErrorIs(t, err, models.ErrPendingApproval)
	assert.True(t, revoker.userRevoked("user_1"))
}

func TestSessionGuard_Refresh_RotatesTokens(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	refreshed, err := guard.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAuthenticated, refreshed.State)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestSessionGuard_Refresh_RejectsAccessToken(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	_, err = guard.Refresh(context.Background(), session.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionGuard_Refresh_UnapprovedUserIsRevoked(t *testing.T) {
	user := approvedUser("user_1")
	guard, revoker, repo := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)
	repo.setApproved("user_1", false)

	_, err = guard.Refresh(context.Background(), session.RefreshToken)
	assert.ErrorIs(t, err, models.ErrPendingApproval)
	assert.True(t, revoker.userRevoked("user_1"))
}

func TestGuardMiddleware_AllowsApprovedAuthenticatedRequest(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	var claims *models.TokenClaims
	handler := auth.GuardMiddleware(guard, auth.RevocationConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = auth.GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user_1", claims.UserID)
}

func TestGuardMiddleware_RejectsMissingToken(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	handler := auth.GuardMiddleware(guard, auth.RevocationConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardMiddleware_DeferredApprovalCheckRevokesSession(t *testing.T) {
	user := approvedUser("user_1")
	guard, revoker, repo := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	handler := auth.GuardMiddleware(guard, auth.RevocationConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First request passes.
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Approval withdrawn mid-session: the next request is rejected and the
	// session revoked.
	repo.setApproved("user_1", false)

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, revoker.userRevoked("user_1"))
}

func TestGuardMiddleware_RejectsRevokedToken(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)
	require.NoError(t, guard.Logout(context.Background(), session.AccessToken))

	handler := auth.GuardMiddleware(guard, auth.RevocationConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardMiddleware_RejectsRefreshTokenForAPIAccess(t *testing.T) {
	user := approvedUser("user_1")
	guard, _, _ := newTestGuard(t, map[string]*models.User{"user_1": user})

	session, err := guard.Authenticate(context.Background(), user)
	require.NoError(t, err)

	handler := auth.GuardMiddleware(guard, auth.RevocationConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+session.RefreshToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
