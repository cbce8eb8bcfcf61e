package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 14 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than keep through purge and logs the count.
type retentionJob struct {
	name  string
	keep  time.Duration
	purge func(ctx context.Context, cutoff time.Time) (int64, error)
	logg  *logger.Logger
	now   func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository readNotificationPurger
	Keep       time.Duration
}

// NewNotificationCleanupJob purges notifications that were read more than
// Keep ago. Unread notifications are never removed.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	return &retentionJob{
		name:  "notification-cleanup",
		keep:  orDefault(params.Keep, defaultNotificationRetention),
		purge: params.Repository.DeleteReadBefore,
		logg:  params.Logger,
		now:   time.Now,
	}, nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	Keep       time.Duration
}

// NewOutboxRetentionJob drops delivered outbox rows. Pending and parked rows
// stay so failures can be inspected.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	purge := func(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
		err = params.DB.WithTx(ctx, func(tx *gorm.DB) error {
			deleted, err = params.Repository.DeletePublishedBefore(tx, cutoff)
			return err
		})
		return deleted, err
	}
	return &retentionJob{
		name:  "outbox-retention",
		keep:  orDefault(params.Keep, defaultOutboxRetention),
		purge: purge,
		logg:  params.Logger,
		now:   time.Now,
	}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
