package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dockeep/dockeep/internal/auth"
	"github.com/dockeep/dockeep/internal/models"
	pkghttp "github.com/dockeep/dockeep/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginCoordinator implements LoginCoordinator for testing
type MockLoginCoordinator struct {
	LoginFunc func(ctx context.Context, email, password, origin string, signals models.DeviceSignals, totpCode string) (*models.User, error)
}

func (m *MockLoginCoordinator) Login(ctx context.Context, email, password, origin string, signals models.DeviceSignals, totpCode string) (*models.User, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, origin, signals, totpCode)
}

// MockSessionManager implements SessionManager for testing
type MockSessionManager struct {
	AuthenticateFunc func(ctx context.Context, user *models.User) (*auth.Session, error)
	RefreshFunc      func(ctx context.Context, refreshToken string) (*auth.Session, error)
	LogoutFunc       func(ctx context.Context, accessToken string) error
	LogoutAllFunc    func(ctx context.Context, userID string) error
}

func (m *MockSessionManager) Authenticate(ctx context.Context, user *models.User) (*auth.Session, error) {
	if m.AuthenticateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AuthenticateFunc(ctx, user)
}

func (m *MockSessionManager) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockSessionManager) Logout(ctx context.Context, accessToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accessToken)
}

func (m *MockSessionManager) LogoutAll(ctx context.Context, userID string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

// MockRegistrationService implements RegistrationService for testing
type MockRegistrationService struct {
	CreateUserFunc func(user *models.User, password string) (*models.User, error)
}

func (m *MockRegistrationService) CreateUser(user *models.User, password string) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(user, password)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc    func(id string) (*models.User, error)
	ListUsersFunc      func(limit, offset int) ([]*models.User, error)
	CreateUserFunc     func(user *models.User, password string) (*models.User, error)
	UpdateUserFunc     func(id string, user *models.User) (*models.User, error)
	ChangePasswordFunc func(id, currentPassword, newPassword, origin string) error
	DeleteUserFunc     func(id string) error
}

func (m *MockUserService) GetUserByID(id string) (*models.User, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserByIDFunc(id)
}

func (m *MockUserService) ListUsers(limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(limit, offset)
}

func (m *MockUserService) CreateUser(user *models.User, password string) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(user, password)
}

func (m *MockUserService) UpdateUser(id string, user *models.User) (*models.User, error) {
	if m.UpdateUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateUserFunc(id, user)
}

func (m *MockUserService) ChangePassword(id, currentPassword, newPassword, origin string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(id, currentPassword, newPassword, origin)
}

func (m *MockUserService) DeleteUser(id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(id)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	ListPendingUsersFunc func(ctx context.Context, limit, offset int) ([]*models.User, error)
	ApproveUserFunc      func(ctx context.Context, actorID, userID string) (*models.User, error)
	SuspendUserFunc      func(ctx context.Context, actorID, userID string) (*models.User, error)
	RecentAttemptsFunc   func(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error)
}

func (m *MockAdminService) ListPendingUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListPendingUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListPendingUsersFunc(ctx, limit, offset)
}

func (m *MockAdminService) ApproveUser(ctx context.Context, actorID, userID string) (*models.User, error) {
	if m.ApproveUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ApproveUserFunc(ctx, actorID, userID)
}

func (m *MockAdminService) SuspendUser(ctx context.Context, actorID, userID string) (*models.User, error) {
	if m.SuspendUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SuspendUserFunc(ctx, actorID, userID)
}

func (m *MockAdminService) RecentAttempts(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	if m.RecentAttemptsFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.RecentAttemptsFunc(ctx, email, limit)
}

// MockTOTPUserStore implements TOTPUserStore for testing
type MockTOTPUserStore struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
	UpdateFunc  func(ctx context.Context, id string, user *models.User) (*models.User, error)
}

func (m *MockTOTPUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockTOTPUserStore) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, id, user)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
// This helper allows tests to set URL parameters that would normally be extracted
// by the Chi router from the URL path.
//
// Example usage:
//
//	req := httptest.NewRequest("PUT", "/users/user123", body)
//	req = WithChiRouteContext(req, map[string]string{
//	    "id": "user123",
//	})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiIDFromURL extracts the ID from a URL path and sets it as a chi route parameter
// This is useful for testing endpoints like /users/{id} without manually parsing the URL
//
// Example usage:
//
//	req := httptest.NewRequest("GET", "/users/user123", nil)
//	req = WithChiIDFromURL(req)  // Automatically extracts "user123" and sets as "id" param
func WithChiIDFromURL(r *http.Request) *http.Request {
	// Extract ID from URL path (e.g., /users/user123 -> "user123")
	path := r.URL.Path
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	// If path has at least 2 parts (e.g., ["users", "user123"]), use the last part as ID
	if len(parts) >= 2 {
		id := parts[len(parts)-1]
		return WithChiRouteContext(r, map[string]string{
			"id": id,
		})
	}

	return r
}
