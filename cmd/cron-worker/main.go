package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gigmarket-backend/internal/cron"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/ledger"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	job := flag.String("job", "", "run only the named job once and exit")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*once, *job); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "cron worker exited", err)
		os.Exit(1)
	}
}

func run(once bool, jobName string) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"interval":    cfg.Cron.Interval.String(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Jobs:       jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		return err
	}

	switch {
	case jobName != "":
		return service.RunJob(ctx, jobName)
	case once:
		return service.RunOnce(ctx)
	}

	logg.Info(ctx, "cron worker started")
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(context.Background(), "cron worker stopped")
	return nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	conn := dbClient.DB()

	notificationRepo := notifications.NewRepository(conn)
	notifier, err := notifications.NewNotifier(notificationRepo, logg)
	if err != nil {
		return nil, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:              orderRepo,
		Gigs:              gigs.NewRepository(conn),
		TransactionRunner: dbClient,
		Ledger:            ledgerService,
		Outbox:            outbox.NewService(outboxRepo, logg),
		Notifier:          notifier,
		Logger:            logg,
		AllowSelfPurchase: cfg.FeatureFlags.AllowSelfPurchase,
	})
	if err != nil {
		return nil, err
	}

	abandoned, err := cron.NewAbandonedOrdersJob(cron.AbandonedOrdersJobParams{
		Logger:  logg,
		Orders:  orderRepo,
		Expirer: orderService,
		MaxAge:  cfg.Cron.AbandonedOrderAge,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationRepo,
		Keep:       cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Keep:       cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}

	return []cron.Job{abandoned, notificationCleanup, outboxRetention}, nil
}
