package handlers_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dockeep/dockeep/internal/handlers"
	"github.com/dockeep/dockeep/internal/models"
	"github.com/stretchr/testify/assert"
)

// Privilege escalation guard: role changes through the update endpoint are
// restricted to admins acting on accounts other than their own.

func TestUpdateUser_PrivilegeEscalation_UserCannotChangeOwnRole(t *testing.T) {
	userID := "user123"

	mockService := &handlers.MockUserService{
		GetUserByIDFunc: func(id string) (*models.User, error) {
			if id == userID {
				return &models.User{
					ID:        userID,
					Email:     "user@example.com",
					Name:      "Regular User",
					Role:      "user",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateUserFunc: func(id string, user *models.User) (*models.User, error) {
			t.Fatal("UpdateUserFunc should not be called when authorization fails")
			return nil, nil
		},
	}

	handler := handlers.NewUserHandler(mockService)

	// User tries to change their own role to admin
	req := handlers.NewTestRequest(t, "PUT", "/users/"+userID, handlers.UpdateUserRequest{
		Name: "Regular User",
		Role: "admin",
	})
	req = handlers.WithAuthContext(req, userID, "user@example.com")
	req = handlers.WithChiIDFromURL(req)

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	handlers.AssertErrorResponse(t, w, 403, "forbidden")
	assert.Contains(t, w.Body.String(), "role", "Error message should mention role change")
}

func TestUpdateUser_PrivilegeEscalation_AdminCannotChangeOwnRole(t *testing.T) {
	adminID := "admin123"

	mockService := &handlers.MockUserService{
		GetUserByIDFunc: func(id string) (*models.User, error) {
			if id == adminID {
				return &models.User{
					ID:        adminID,
					Email:     "admin@example.com",
					Name:      "Admin User",
					Role:      "admin",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateUserFunc: func(id string, user *models.User) (*models.User, error) {
			t.Fatal("UpdateUserFunc should not be called when admin tries to change own role")
			return nil, nil
		},
	}

	handler := handlers.NewUserHandler(mockService)

	// Admin tries to downgrade their own role to user
	req := handlers.NewTestRequest(t, "PUT", "/users/"+adminID, handlers.UpdateUserRequest{
		Name: "Admin User",
		Role: "user",
	})
	req = handlers.WithAuthContext(req, adminID, "admin@example.com")
	req = handlers.WithChiIDFromURL(req)

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	handlers.AssertErrorResponse(t, w, 403, "forbidden")
	assert.Contains(t, w.Body.String(), "own role", "Error message should mention cannot change own role")
}

func TestUpdateUser_NonAdminCannotChangeOtherUserRole(t *testing.T) {
	mockService := &handlers.MockUserService{
		GetUserByIDFunc: func(id string) (*models.User, error) {
			return &models.User{
				ID:    id,
				Email: id + "@example.com",
				Role:  "record-admin",
			}, nil
		},
		UpdateUserFunc: func(id string, user *models.User) (*models.User, error) {
			t.Fatal("UpdateUserFunc should not be called for a non-admin role change")
			return nil, nil
		},
	}

	handler := handlers.NewUserHandler(mockService)

	req := handlers.NewTestRequest(t, "PUT", "/users/user456", handlers.UpdateUserRequest{
		Role: "admin",
	})
	req = handlers.WithAuthContext(req, "actor123", "actor123@example.com")
	req = handlers.WithChiIDFromURL(req)

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	handlers.AssertErrorResponse(t, w, 403, "forbidden")
}

func TestUpdateUser_AuthorizedRoleChange_AdminCanChangeOtherUserRole(t *testing.T) {
	adminID := "admin123"
	targetUserID := "user456"

	mockService := &handlers.MockUserService{
		GetUserByIDFunc: func(id string) (*models.User, error) {
			if id == adminID {
				return &models.User{
					ID:        adminID,
					Email:     "admin@example.com",
					Name:      "Admin User",
					Role:      "admin",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			if id == targetUserID {
				return &models.User{
					ID:        targetUserID,
					Email:     "user456@example.com",
					Name:      "Other User",
					Role:      "user",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateUserFunc: func(id string, user *models.User) (*models.User, error) {
			// Admin is changing another user's role, which is allowed
			if id == targetUserID && user.Role == "record-admin" {
				return &models.User{
					ID:        targetUserID,
					Email:     "user456@example.com",
					Name:      "Other User",
					Role:      "record-admin",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			return nil, models.ErrNotFound
		},
	}

	handler := handlers.NewUserHandler(mockService)

	// Admin promotes another user to record-admin
	req := handlers.NewTestRequest(t, "PUT", "/users/"+targetUserID, handlers.UpdateUserRequest{
		Name: "Other User",
		Role: "record-admin",
	})
	req = handlers.WithAuthContext(req, adminID, "admin@example.com")
	req = handlers.WithChiIDFromURL(req)

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "record-admin", resp.Role)
}
