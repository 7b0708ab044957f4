package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// PurgeStore is the subset of the quota store needed by the retention job.
// Defined here to avoid a dependency on the store package.
type PurgeStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RetentionPurgeJob deletes quota records past their retention TTL. The
// sqlite driver has no native expiry, so rows only leave the database here.
type RetentionPurgeJob struct {
	Store        PurgeStore
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*RetentionPurgeJob)(nil)

// Name implements Job.
func (j *RetentionPurgeJob) Name() string {
	return "retention_purge"
}

// Schedule implements Job.
func (j *RetentionPurgeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run purges expired records.
func (j *RetentionPurgeJob) Run(ctx context.Context) error {
	purged, err := j.Store.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("cron: retention purge: %w", err)
	}
	if purged > 0 {
		j.Logger.Info("cron: purged expired quota records", "count", purged)
	}
	return nil
}
