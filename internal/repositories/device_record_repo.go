package repositories

import (
	"context"

	"github.com/dockeep/dockeep/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceRecordRepository is the durable device-trust store. It satisfies
// services.DeviceTrustStore so the login flow can run against Postgres in
// production and the in-memory store in tests.
type DeviceRecordRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRecordRepository(db *database.DB) *DeviceRecordRepository {
	return &DeviceRecordRepository{pool: db.Pool}
}

// IsKnown reports whether the fingerprint has been seen for this user.
func (r *DeviceRecordRepository) IsKnown(ctx context.Context, userID, fingerprint string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM device_records WHERE user_id = $1 AND fingerprint = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, fingerprint).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// Remember stores the fingerprint for the user. Re-remembering a known
// device is a no-op, so concurrent first logins cannot fail on the
// uniqueness constraint.
func (r *DeviceRecordRepository) Remember(ctx context.Context, userID, fingerprint string) error {
	query := `
		INSERT INTO device_records (id, user_id, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, fingerprint) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, uuid.New().String(), userID, fingerprint)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// DeleteForUser drops all trusted devices for a user, used when an
// administrator suspends an account.
func (r *DeviceRecordRepository) DeleteForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM device_records WHERE user_id = $1`

	_, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}
