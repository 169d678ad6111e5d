package services

import (
	"context"
	"sync"
	"time"

	"github.com/dockeep/dockeep/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc             func(ctx context.Context, id string) (*models.User, error)
	ListFunc                func(ctx context.Context, limit, offset int) ([]*models.User, error)
	ListPendingApprovalFunc func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc              func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc              func(ctx context.Context, id string, user *models.User) (*models.User, error)
	SetApprovedFunc         func(ctx context.Context, id string, approved bool) (*models.User, error)
	UpdatePasswordFunc      func(ctx context.Context, id, passwordHash string) error
	DeleteFunc              func(ctx context.Context, id string) error
	GetByEmailFunc          func(ctx context.Context, email string) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) ListPendingApproval(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListPendingApprovalFunc != nil {
		return m.ListPendingApprovalFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetApproved(ctx context.Context, id string, approved bool) (*models.User, error) {
	if m.SetApprovedFunc != nil {
		return m.SetApprovedFunc(ctx, id, approved)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

// MockTokenRevocationRepository implements the revocation store for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc         func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	RevokeAllUserTokensFunc func(ctx context.Context, userID, reason string) error
	IsTokenRevokedFunc      func(ctx context.Context, jti string) (bool, error)
	IsUserRevokedSinceFunc  func(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	if m.RevokeAllUserTokensFunc != nil {
		return m.RevokeAllUserTokensFunc(ctx, userID, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

func (m *MockTokenRevocationRepository) IsUserRevokedSince(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if m.IsUserRevokedSinceFunc != nil {
		return m.IsUserRevokedSinceFunc(ctx, userID, issuedAt)
	}
	return false, nil
}

// MockAttemptRecorder captures the persistent attempt trail for testing
type MockAttemptRecorder struct {
	mu                sync.Mutex
	RecordAttemptFunc func(ctx context.Context, attempt *models.LoginAttempt) error
	Recorded          []*models.LoginAttempt
}

func (m *MockAttemptRecorder) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

// Failures returns recorded attempts with success=false
func (m *MockAttemptRecorder) Failures() []*models.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	failures := make([]*models.LoginAttempt, 0)
	for _, a := range m.Recorded {
		if !a.Success {
			failures = append(failures, a)
		}
	}
	return failures
}

// RecordingMailer implements Mailer and counts deliveries. Notifier sends run
// in goroutines, so the counters are mutex-guarded and callers should
// Notifier.Wait() before asserting.
type RecordingMailer struct {
	mu                  sync.Mutex
	SendLockoutErr      error
	SendNewDeviceErr    error
	LockoutWarnings     []string
	NewDeviceAlerts     []string
	NewDeviceSignals    []models.DeviceSignals
}

func (m *RecordingMailer) SendLockoutWarning(ctx context.Context, email, name string, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendLockoutErr != nil {
		return m.SendLockoutErr
	}
	m.LockoutWarnings = append(m.LockoutWarnings, email)
	return nil
}

func (m *RecordingMailer) SendNewDeviceAlert(ctx context.Context, email, name string, device models.DeviceSignals, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendNewDeviceErr != nil {
		return m.SendNewDeviceErr
	}
	m.NewDeviceAlerts = append(m.NewDeviceAlerts, email)
	m.NewDeviceSignals = append(m.NewDeviceSignals, device)
	return nil
}

func (m *RecordingMailer) LockoutWarningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.LockoutWarnings)
}

func (m *RecordingMailer) NewDeviceAlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.NewDeviceAlerts)
}

// MockTOTPVerifier implements TOTPVerifier for testing
type MockTOTPVerifier struct {
	VerifyCodeFunc func(user *models.User, code string) (bool, error)
}

func (m *MockTOTPVerifier) VerifyCode(user *models.User, code string) (bool, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(user, code)
	}
	return true, nil
}

// MockDeviceTrustStore implements DeviceTrustStore for testing
type MockDeviceTrustStore struct {
	IsKnownFunc  func(ctx context.Context, userID, fingerprint string) (bool, error)
	RememberFunc func(ctx context.Context, userID, fingerprint string) error
}

func (m *MockDeviceTrustStore) IsKnown(ctx context.Context, userID, fingerprint string) (bool, error) {
	if m.IsKnownFunc != nil {
		return m.IsKnownFunc(ctx, userID, fingerprint)
	}
	return false, nil
}

func (m *MockDeviceTrustStore) Remember(ctx context.Context, userID, fingerprint string) error {
	if m.RememberFunc != nil {
		return m.RememberFunc(ctx, userID, fingerprint)
	}
	return nil
}

// NewTestUser creates an approved user with the default role
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Approved:  true,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword creates a user whose PasswordHash matches password.
// MinCost keeps test hashing fast; the production cost lives in pkg/auth.
func NewTestUserWithPassword(id, email, name, password string) *models.User {
	user := NewTestUser(id, email, name)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user.PasswordHash = string(hash)
	return user
}

// NewTestUserPending creates a user awaiting admin approval
func NewTestUserPending(id, email, name string) *models.User {
	user := NewTestUser(id, email, name)
	user.Approved = false
	return user
}

// NewTestUserWithRole creates an approved user with the given role
func NewTestUserWithRole(id, email, name, role string) *models.User {
	user := NewTestUser(id, email, name)
	user.Role = role
	return user
}
