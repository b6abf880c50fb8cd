package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPruner trims login attempt rows past the retention horizon.
type AttemptPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResetTokenPruner removes expired password reset tokens.
type ResetTokenPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically prunes expired reset tokens and login
// attempts past retention. Sessions are deliberately not pruned: revoked
// and expired session rows stay as forensic history.
type CleanupManager struct {
	attempts  AttemptPruner
	resets    ResetTokenPruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
}

func NewCleanupManager(attempts AttemptPruner, resets ResetTokenPruner, retention, interval time.Duration, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		attempts:  attempts,
		resets:    resets,
		retention: retention,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop or context cancellation.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.run(ctx)

	for {
		select {
		case <-ticker.C:
			cm.run(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	pruned, err := cm.attempts.DeleteOlderThan(runCtx, now.Add(-cm.retention))
	if err != nil {
		cm.logger.Error("login attempt pruning failed", slog.Any("error", err))
	} else if pruned > 0 {
		cm.logger.Info("pruned old login attempts", slog.Int64("rows", pruned))
	}

	expired, err := cm.resets.DeleteExpired(runCtx, now)
	if err != nil {
		cm.logger.Error("reset token pruning failed", slog.Any("error", err))
	} else if expired > 0 {
		cm.logger.Info("pruned expired reset tokens", slog.Int64("rows", expired))
	}
}

// Stop signals the loop to exit.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
