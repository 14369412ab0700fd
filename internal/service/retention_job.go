package service

import (
	"context"
	"log/slog"
	"time"
)

// visitorCleaner 是 RetentionJob 依赖的最小接口。
type visitorCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

// RetentionJob 周期性地清理过期访问记录，直到 ctx 被取消。
type RetentionJob struct {
	cleaner       visitorCleaner
	interval      time.Duration
	retentionDays int
	logger        *slog.Logger
}

// NewRetentionJob 创建清理任务。
func NewRetentionJob(cleaner visitorCleaner, interval time.Duration, retentionDays int, logger *slog.Logger) *RetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionJob{
		cleaner:       cleaner,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start 先执行一次清理，然后按间隔执行。interval<=0 时只执行一次。
func (j *RetentionJob) Start(ctx context.Context) error {
	j.logger.Info("[RetentionJob] Starting visitor retention job",
		"interval", j.interval,
		"retention_days", j.retentionDays,
	)

	j.runOnce(ctx)
	if j.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-ctx.Done():
			j.logger.Info("[RetentionJob] Stopping (context cancelled)")
			return nil
		}
	}
}

func (j *RetentionJob) runOnce(ctx context.Context) {
	removed, err := j.cleaner.Cleanup(ctx, j.retentionDays)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("[RetentionJob] Cleanup failed", "error", err)
		}
		return
	}
	if removed > 0 {
		j.logger.Info("[RetentionJob] Cleanup finished", "removed", removed)
	}
}
