package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dockeep/dockeep/internal/database"
	"github.com/dockeep/dockeep/internal/models"
)

// LoginAttemptRepository handles database operations for the attempt audit trail
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a login attempt in the database
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason, device_fingerprint, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.DeviceFingerprint,
		attempt.ExpiresAt,
	)

	return err
}

// ListRecentByEmail returns the most recent attempts for an email, newest first.
func (r *LoginAttemptRepository) ListRecentByEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, attempt_time, success, failure_reason, device_fingerprint, expires_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(
			&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.AttemptTime,
			&a.Success, &a.FailureReason, &a.DeviceFingerprint, &a.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}

// GetFailedAttemptCount returns the number of failed attempts for an email within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// DeleteExpiredAttempts removes login attempts older than the expiration time
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) error {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	_, err := r.db.Pool.Exec(ctx, query)
	return err
}
