package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 14 * 24 * time.Hour
	defaultNotificationRetention = 30 * 24 * time.Hour
	minRetention                 = 24 * time.Hour
	retentionCadence             = 6 * time.Hour
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes outbox rows published before now-retention.
// Unpublished rows are never touched.
func NewOutboxRetentionJob(logg *logger.Logger, repo outboxPruner, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", logg, repo.DeletePublishedBefore, retention, defaultOutboxRetention)
}

// NewNotificationCleanupJob deletes read notifications created before
// now-retention. Unread notifications are kept.
func NewNotificationCleanupJob(logg *logger.Logger, repo notificationPruner, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-cleanup", logg, repo.DeleteReadBefore, retention, defaultNotificationRetention)
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	prune     func(ctx context.Context, cutoff time.Time) (int64, error)
	retention time.Duration
	now       func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, prune func(context.Context, time.Time) (int64, error), retention, fallback time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if retention == 0 {
		retention = fallback
	}
	if retention < minRetention {
		return nil, fmt.Errorf("%s retention %s below minimum %s", name, retention, minRetention)
	}
	return &retentionJob{
		name:      name,
		logg:      logg,
		prune:     prune,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

// Every spaces sweeps out; windows are measured in days.
func (j *retentionJob) Every() time.Duration { return retentionCadence }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}
