package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gigmarket-backend/api/routes"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/ledger"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	params, err := buildRouterParams(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		return
	}

	addr := ":" + cfg.App.Port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
		return
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func buildRouterParams(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.RouterParams, error) {
	conn := dbClient.DB()
	reg := prometheus.DefaultRegisterer

	notificationRepo := notifications.NewRepository(conn)
	notifier, err := notifications.NewNotifier(notificationRepo, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}
	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		return routes.RouterParams{}, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return routes.RouterParams{}, err
	}
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	gigRepo := gigs.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:              orderRepo,
		Gigs:              gigRepo,
		TransactionRunner: dbClient,
		Ledger:            ledgerService,
		Outbox:            emitter,
		Notifier:          notifier,
		Logger:            logg,
		Metrics:           metrics.NewOrderTransitionMetrics(reg),
		AllowSelfPurchase: cfg.FeatureFlags.AllowSelfPurchase,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	provider, err := payments.NewProvider(context.Background(), cfg, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		Orders:            orderRepo,
		Gigs:              gigRepo,
		Provider:          provider,
		TransactionRunner: dbClient,
		Ledger:            ledgerService,
		Outbox:            emitter,
		Notifier:          notifier,
		Logger:            logg,
		Metrics:           metrics.NewPaymentCallbackMetrics(reg),
	})
	if err != nil {
		return routes.RouterParams{}, err
	}
	guard, err := payments.NewCallbackGuard(redisClient, cfg.Payments.CallbackIdempotencyTTL, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:              reviews.NewRepository(conn),
		Orders:            orderRepo,
		Gigs:              gigRepo,
		Users:             users.NewRepository(conn),
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Notifier:          notifier,
		Logger:            logg,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	return routes.RouterParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Orders:        orderService,
		Payments:      paymentService,
		Reviews:       reviewService,
		Notifications: notificationService,
		Notifier:      notifier,
		Ledger:        ledgerService,
		CallbackGuard: guard,
	}, nil
}
