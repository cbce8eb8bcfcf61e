package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

func TestNotificationCleanupJobKeepsUnreadRows(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := notifications.NewRepository(conn)
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	recipient := uuid.New()

	readAt := now.Add(-40 * 24 * time.Hour)
	seed := func(createdAt time.Time, read *time.Time) uuid.UUID {
		row := &models.Notification{
			RecipientID: recipient,
			Type:        enums.NotificationTypeOrderStatus,
			Title:       "Order update",
			CreatedAt:   createdAt,
			ReadAt:      read,
		}
		require.NoError(t, repo.Create(ctx, row))
		return row.ID
	}
	oldRead := seed(now.Add(-45*24*time.Hour), &readAt)
	oldUnread := seed(now.Add(-45*24*time.Hour), nil)
	recentRead := seed(now.Add(-2*24*time.Hour), &readAt)

	jobIface, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: testLogger(), Repository: repo})
	require.NoError(t, err)
	job := jobIface.(*retentionJob)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(ctx))

	var remaining []models.Notification
	require.NoError(t, conn.Find(&remaining).Error)
	ids := make([]uuid.UUID, 0, len(remaining))
	for _, n := range remaining {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{oldUnread, recentRead}, ids)
	assert.NotContains(t, ids, oldRead)
}

type failingPurger struct{}

func (failingPurger) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestNotificationCleanupJobPropagatesErrors(t *testing.T) {
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: testLogger(), Repository: failingPurger{}})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobDeletesOnlyOldPublishedRows(t *testing.T) {
	ctx := context.Background()
	client, conn := dbtest.OpenClient(t)
	repo := outbox.NewRepository(conn)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	seed := func(published *time.Time) uuid.UUID {
		id := uuid.New()
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			ID:            id,
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			CreatedAt:     now.Add(-60 * 24 * time.Hour),
			PublishedAt:   published,
		}))
		return id
	}
	longAgo := now.Add(-30 * 24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)
	oldPublished := seed(&longAgo)
	recentPublished := seed(&yesterday)
	pending := seed(nil)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         client,
		Repository: repo,
	})
	require.NoError(t, err)
	job := jobIface.(*retentionJob)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(ctx))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{recentPublished, pending}, ids)
	assert.NotContains(t, ids, oldPublished)
}

type failingRetentionRepo struct{}

func (failingRetentionRepo) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, errors.New("boom")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobPropagatesErrors(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: failingRetentionRepo{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestRetentionJobHonoursKeep(t *testing.T) {
	var gotCutoff time.Time
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	job := &retentionJob{
		name: "sweep",
		keep: 48 * time.Hour,
		purge: func(_ context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 0, nil
		},
		logg: testLogger(),
		now:  func() time.Time { return now },
	}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), gotCutoff)

	nj, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: testLogger(), Repository: failingPurger{}, Keep: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, nj.(*retentionJob).keep)
	oj, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: passthroughTx{}, Repository: failingRetentionRepo{}})
	require.NoError(t, err)
	assert.Equal(t, defaultOutboxRetention, oj.(*retentionJob).keep)
}
