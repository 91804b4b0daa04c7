package consumer

import (
	"context"
	"log/slog"
	"time"
)

// LedgerJanitor deletes aged records from the failure ledger.
type LedgerJanitor interface {
	Cleanup(ctx context.Context, retention time.Duration) (resolvedDeleted, staleDeleted int64, err error)
}

// CleanupJob periodically prunes the ledger: resolved records past the
// retention window, and never-resolved records past three times that window
// so the ledger cannot grow without bound.
type CleanupJob struct {
	ledger    LedgerJanitor
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

func NewCleanupJob(ledger LedgerJanitor, retention, interval time.Duration, logger *slog.Logger) *CleanupJob {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &CleanupJob{
		ledger:    ledger,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until the context is cancelled, pruning once per interval.
func (c *CleanupJob) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *CleanupJob) runOnce(ctx context.Context) {
	resolved, stale, err := c.ledger.Cleanup(ctx, c.retention)
	if err != nil {
		c.logger.Error("ledger cleanup failed", slog.Any("error", err))
		return
	}
	c.logger.Info("ledger cleanup finished",
		slog.Int64("resolved_deleted", resolved),
		slog.Int64("stale_deleted", stale))
}
