// Package maintenance runs scheduled housekeeping for the storage server.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/logging"
	"github.com/dmitrijs2005/lmsstorage/internal/server/metrics"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/accesslogs"
	"github.com/robfig/cron/v3"
)

// Cleaner prunes access log entries older than the retention period.
type Cleaner struct {
	repo      accesslogs.Repository
	retention time.Duration
	logger    logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCleaner(repo accesslogs.Repository, retention time.Duration, logger logging.Logger, mx *metrics.Metrics) *Cleaner {
	return &Cleaner{
		repo:      repo,
		retention: retention,
		logger:    logger.With("module", "maintenance"),
		metrics:   mx,
		now:       time.Now,
	}
}

// PurgeAccessLogs deletes entries created before now minus the retention.
func (c *Cleaner) PurgeAccessLogs(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention).UTC()
	n, err := c.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge access logs: %w", err)
	}
	c.metrics.ObservePurged(n)
	return n, nil
}

// Run schedules PurgeAccessLogs with a standard cron spec (descriptors such
// as @daily are accepted) and blocks until ctx is done. A running purge is
// allowed to finish before Run returns.
func (c *Cleaner) Run(ctx context.Context, schedule string) error {
	cr := cron.New()

	_, err := cr.AddFunc(schedule, func() {
		n, err := c.PurgeAccessLogs(ctx)
		if err != nil {
			c.logger.Error(ctx, "access log cleanup failed", "error", err)
			return
		}
		c.logger.Info(ctx, "access log cleanup finished", "deleted", n)
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	cr.Start()
	c.logger.Info(ctx, "cleanup scheduler started", "schedule", schedule, "retention", c.retention.String())

	<-ctx.Done()
	<-cr.Stop().Done()
	c.logger.Info(context.WithoutCancel(ctx), "cleanup scheduler stopped")
	return nil
}
