package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/payments"
	reviewcontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/reviews"
	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         *redis.Client
	Orders        orders.Service
	Payments      payments.Service
	Reviews       reviews.Service
	Notifications notifications.Service
	Notifier      notifications.Notifier
	Ledger        ordercontrollers.LedgerReader
	CallbackGuard paymentcontrollers.Guard
	// Metrics defaults to the prometheus default gatherer.
	Metrics http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	deps := []controllers.Dependency{{Name: "database", Pinger: p.DB}}
	var rateStore *redis.Client
	if p.Redis != nil {
		deps = append(deps, controllers.Dependency{Name: "redis", Pinger: p.Redis})
		rateStore = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps...))
	})

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	callbackPolicy := middleware.NewRateLimitPolicy(
		"payment-callbacks",
		cfg.RateLimit.CallbackWindow,
		cfg.RateLimit.CallbackIPLimit,
		cfg.RateLimit.CallbackUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(p.Orders, logg))
				r.Patch("/status", ordercontrollers.UpdateStatus(p.Orders, p.Notifier, logg))
				r.Post("/cancel", ordercontrollers.Cancel(p.Orders, logg))
				r.Put("/requirements", ordercontrollers.UpdateRequirements(p.Orders, logg))
				r.Get("/payment", ordercontrollers.Payment(p.Payments, logg))
				r.Get("/ledger", ordercontrollers.Ledger(p.Orders, p.Ledger, logg))
				r.Post("/review", reviewcontrollers.Submit(p.Reviews, logg))
			})
		})

		r.Post("/reviews/{reviewId}/reply", reviewcontrollers.Reply(p.Reviews, logg))
		r.Get("/gigs/{gigId}/reviews", reviewcontrollers.ListByGig(p.Reviews, logg))
		r.Get("/sellers/{sellerId}/reviews", reviewcontrollers.ListBySeller(p.Reviews, logg))

		r.Route("/payments/callbacks", func(r chi.Router) {
			if rateStore != nil {
				r.Use(middleware.RateLimit(callbackPolicy, rateStore, logg))
			}
			r.Post("/approve", paymentcontrollers.Approve(p.Payments, p.CallbackGuard, logg))
			r.Post("/complete", paymentcontrollers.Complete(p.Payments, p.CallbackGuard, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	return r
}
