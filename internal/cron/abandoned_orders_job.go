package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	defaultAbandonedOrderAge = 72 * time.Hour
	abandonedBatchSize       = 200
)

// AbandonedOrdersJobParams configure the unpaid order expiry job.
type AbandonedOrdersJobParams struct {
	Logger    *logger.Logger
	Orders    abandonedOrderFinder
	Expirer   orderExpirer
	MaxAge    time.Duration
	BatchSize int
}

type abandonedOrderFinder interface {
	FindAbandonedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	ExpireAbandoned(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// NewAbandonedOrdersJob builds the job that cancels orders nobody paid for.
func NewAbandonedOrdersJob(params AbandonedOrdersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultAbandonedOrderAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = abandonedBatchSize
	}
	return &abandonedOrdersJob{
		logg:    params.Logger,
		orders:  params.Orders,
		expirer: params.Expirer,
		maxAge:  maxAge,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type abandonedOrdersJob struct {
	logg    *logger.Logger
	orders  abandonedOrderFinder
	expirer orderExpirer
	maxAge  time.Duration
	batch   int
	now     func() time.Time
}

func (j *abandonedOrdersJob) Name() string { return "abandoned-orders" }

// Run expires one batch per cycle. Orders left over are picked up next tick.
func (j *abandonedOrdersJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	candidates, err := j.orders.FindAbandonedBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query abandoned orders: %w", err)
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, order := range candidates {
		ok, err := j.expirer.ExpireAbandoned(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(candidates),
		"expired":    expired,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
		"batch_full": len(candidates) == j.batch,
	})
	j.logg.Info(logCtx, "abandoned order sweep complete")
	return errs
}
