package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dockeep/dockeep/internal/database"
	"github.com/dockeep/dockeep/internal/models"
	"github.com/dockeep/dockeep/internal/repositories"
	"github.com/dockeep/dockeep/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	// Create PostgreSQL container
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithInitScripts(),
		postgres.WithDatabase("dockeep"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*1000),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	// Create connection pool
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create database.DB wrapper
	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Get absolute path to migrations directory
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs stdlib DB connection
	// Use stdlib adapter from pgx
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	// Run migrations on the stdlib DB
	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"device_records",
		"revoked_tokens",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.UserRepository,
	*repositories.TokenRevocationRepository,
	*repositories.LoginAttemptRepository,
	*repositories.DeviceRecordRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewTokenRevocationRepository(db),
		repositories.NewLoginAttemptRepository(db),
		repositories.NewDeviceRecordRepository(db)
}

// SeedUser inserts a test user with hashed password
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, approved bool) (*models.User, error) {
	// Hash password
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Insert user
	query := `
		INSERT INTO users (id, email, password_hash, name, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, email, password_hash, name, approved, premium, role, totp_enabled, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, uuid.New().String(), email, hashedPassword, "Test User", approved).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Approved,
		&user.Premium,
		&user.Role,
		&user.TOTPEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// SeedAdminUser inserts an approved user with the admin role
func SeedAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (*models.User, error) {
	user, err := SeedUser(ctx, pool, email, password, true)
	if err != nil {
		return nil, err
	}

	query := `UPDATE users SET role = $1 WHERE id = $2`
	if _, err := pool.Exec(ctx, query, models.RoleAdmin, user.ID); err != nil {
		return nil, fmt.Errorf("failed to promote user: %w", err)
	}
	user.Role = models.RoleAdmin

	return user, nil
}

// SeedLoginAttempt inserts one attempt row for the given email.
func SeedLoginAttempt(ctx context.Context, pool *pgxpool.Pool, email, ip string, success bool, at time.Time) error {
	var reason *string
	if !success {
		r := "invalid_credentials"
		reason = &r
	}

	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, attempt_time, success, failure_reason, device_fingerprint, expires_at)
		VALUES ($1, $2, 'integration-test', $3, $4, $5, 'fp-test', $3 + INTERVAL '30 days')
	`

	if _, err := pool.Exec(ctx, query, email, ip, at, success, reason); err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}

	return nil
}

// SeedDeviceRecord marks a (user, fingerprint) pair as previously seen.
func SeedDeviceRecord(ctx context.Context, pool *pgxpool.Pool, userID, fingerprint string) error {
	query := `
		INSERT INTO device_records (id, user_id, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, fingerprint) DO NOTHING
	`

	if _, err := pool.Exec(ctx, query, uuid.New().String(), userID, fingerprint); err != nil {
		return fmt.Errorf("failed to insert device record: %w", err)
	}

	return nil
}
