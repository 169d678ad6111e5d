package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dockeep/dockeep/internal/handlers"
	"github.com/dockeep/dockeep/internal/models"
	"github.com/stretchr/testify/assert"
)

func pendingUser(id string) *models.User {
	return &models.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "Pending User",
		Approved:  false,
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestListPendingUsers_Success_Returns200(t *testing.T) {
	mockService := &handlers.MockAdminService{
		ListPendingUsersFunc: func(ctx context.Context, limit, offset int) ([]*models.User, error) {
			assert.Equal(t, 50, limit)
			assert.Equal(t, 0, offset)
			return []*models.User{pendingUser("user1"), pendingUser("user2")}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/admin/users/pending", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")

	w := httptest.NewRecorder()
	handler.ListPendingUsers(w, req)

	var resp handlers.ListUsersResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Users, 2)
	assert.False(t, resp.Users[0].Approved)
}

func TestListPendingUsers_LimitClamped(t *testing.T) {
	var gotLimit int
	mockService := &handlers.MockAdminService{
		ListPendingUsersFunc: func(ctx context.Context, limit, offset int) ([]*models.User, error) {
			gotLimit = limit
			return []*models.User{}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/admin/users/pending?limit=5000", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")

	w := httptest.NewRecorder()
	handler.ListPendingUsers(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 50, gotLimit)
}

func TestApproveUser_Success_Returns200(t *testing.T) {
	mockService := &handlers.MockAdminService{
		ApproveUserFunc: func(ctx context.Context, actorID, userID string) (*models.User, error) {
			assert.Equal(t, "admin123", actorID)
			assert.Equal(t, "user456", userID)
			user := pendingUser(userID)
			user.Approved = true
			return user, nil
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/admin/users/user456/approve", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "user456"})

	w := httptest.NewRecorder()
	handler.ApproveUser(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user456", resp.ID)
	assert.True(t, resp.Approved)
}

func TestApproveUser_NotFound_Returns404(t *testing.T) {
	mockService := &handlers.MockAdminService{
		ApproveUserFunc: func(ctx context.Context, actorID, userID string) (*models.User, error) {
			return nil, models.ErrNotFound
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/admin/users/nonexistent/approve", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "nonexistent"})

	w := httptest.NewRecorder()
	handler.ApproveUser(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestApproveUser_NoAuthContext_Returns401(t *testing.T) {
	handler := handlers.NewAdminHandler(&handlers.MockAdminService{})
	req := handlers.NewTestRequest(t, "POST", "/admin/users/user456/approve", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "user456"})

	w := httptest.NewRecorder()
	handler.ApproveUser(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestSuspendUser_Success_Returns200(t *testing.T) {
	var suspended string
	mockService := &handlers.MockAdminService{
		SuspendUserFunc: func(ctx context.Context, actorID, userID string) (*models.User, error) {
			suspended = userID
			return pendingUser(userID), nil
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "POST", "/admin/users/user456/suspend", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "user456"})

	w := httptest.NewRecorder()
	handler.SuspendUser(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user456", suspended)
	assert.False(t, resp.Approved)
}

func TestGetLoginAttempts_Success_Returns200(t *testing.T) {
	reason := "invalid password"
	mockService := &handlers.MockAdminService{
		RecentAttemptsFunc: func(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
			assert.Equal(t, "user@example.com", email)
			assert.Equal(t, 100, limit)
			return []*models.LoginAttempt{
				{
					Email:             "user@example.com",
					IPAddress:         "203.0.113.7",
					UserAgent:         "Mozilla/5.0",
					AttemptTime:       time.Now(),
					Success:           false,
					FailureReason:     &reason,
					DeviceFingerprint: "fp123",
				},
				{
					Email:             "user@example.com",
					IPAddress:         "203.0.113.7",
					UserAgent:         "Mozilla/5.0",
					AttemptTime:       time.Now().Add(-time.Minute),
					Success:           true,
					DeviceFingerprint: "fp123",
				},
			}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/admin/login-attempts?email=user@example.com", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")

	w := httptest.NewRecorder()
	handler.GetLoginAttempts(w, req)

	var resp []handlers.LoginAttemptResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp, 2)
	assert.False(t, resp[0].Success)
	assert.Equal(t, "invalid password", *resp[0].FailureReason)
	assert.True(t, resp[1].Success)
}

func TestGetLoginAttempts_MissingEmail_Returns400(t *testing.T) {
	handler := handlers.NewAdminHandler(&handlers.MockAdminService{})
	req := handlers.NewTestRequest(t, "GET", "/admin/login-attempts", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")

	w := httptest.NewRecorder()
	handler.GetLoginAttempts(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestGetLoginAttempts_ServiceError_Returns500(t *testing.T) {
	mockService := &handlers.MockAdminService{
		RecentAttemptsFunc: func(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
			return nil, assert.AnError
		},
	}

	handler := handlers.NewAdminHandler(mockService)
	req := handlers.NewTestRequest(t, "GET", "/admin/login-attempts?email=user@example.com", nil)
	req = handlers.WithAuthContext(req, "admin123", "admin@example.com")

	w := httptest.NewRecorder()
	handler.GetLoginAttempts(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}
