package notification

import (
	"context"
	"time"

	"github.com/kudos/kudos-api/internal/pkg/logger"
)

const defaultRetentionDays = 90

// CleanupJob deletes notifications past their retention window.
type CleanupJob struct {
	repo      Repository
	retention time.Duration
	now       func() time.Time
}

// NewCleanupJob creates a cleanup job. retentionDays <= 0 means 90.
func NewCleanupJob(repo Repository, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &CleanupJob{
		repo:      repo,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Start runs the job immediately and then every interval until ctx ends.
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	log := logger.Component(ctx, "notification_cleanup")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deleted, err := j.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error().Err(err).Msg("Notification cleanup failed")
		case deleted > 0:
			log.Info().Int64("deleted", deleted).Dur("retention", j.retention).Msg("Old notifications removed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Notification cleanup stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce deletes everything older than the retention window.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	return j.repo.DeleteBefore(ctx, j.now().Add(-j.retention))
}
