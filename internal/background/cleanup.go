package background

import (
	"context"
	"log/slog"
	"time"
)

// RevokedTokenCleaner removes expired revocation entries.
type RevokedTokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// AttemptTrailCleaner removes login attempt rows past their retention window.
type AttemptTrailCleaner interface {
	DeleteExpiredAttempts(ctx context.Context) error
}

// CounterPruner drops expired in-memory lockout windows.
type CounterPruner interface {
	Prune() int
}

// CleanupManager periodically removes expired revocation entries, stale login
// attempt rows, and elapsed in-memory lockout windows.
type CleanupManager struct {
	revoked  RevokedTokenCleaner
	attempts AttemptTrailCleaner
	counters CounterPruner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	revoked RevokedTokenCleaner,
	attempts AttemptTrailCleaner,
	counters CounterPruner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		revoked:  revoked,
		attempts: attempts,
		counters: counters,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting auth state cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.revoked != nil {
		rowsDeleted, err := cm.revoked.CleanupExpiredTokens(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to cleanup expired revoked tokens", slog.Any("error", err))
		} else if rowsDeleted > 0 {
			cm.logger.Info("expired revoked token cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
		}
	}

	if cm.attempts != nil {
		if err := cm.attempts.DeleteExpiredAttempts(cleanupCtx); err != nil {
			cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
		}
	}

	if cm.counters != nil {
		if pruned := cm.counters.Prune(); pruned > 0 {
			cm.logger.Debug("pruned elapsed lockout windows", slog.Int("count", pruned))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
