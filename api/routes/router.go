package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/smm-storefront/api/controllers"
	ordercontrollers "github.com/angelmondragon/smm-storefront/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/smm-storefront/api/controllers/webhooks"
	"github.com/angelmondragon/smm-storefront/api/middleware"
	authsvc "github.com/angelmondragon/smm-storefront/internal/auth"
	checkoutsvc "github.com/angelmondragon/smm-storefront/internal/checkout"
	"github.com/angelmondragon/smm-storefront/internal/orders"
	"github.com/angelmondragon/smm-storefront/internal/payments"
	"github.com/angelmondragon/smm-storefront/pkg/auth"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

// Services bundles what the HTTP surface calls into. A nil entry makes its
// handlers answer 500 instead of panicking.
type Services struct {
	Auth      authsvc.Service
	Checkout  checkoutsvc.Service
	Payments  payments.Service
	Orders    orders.Service
	Coupons   controllers.CouponCreator
	Dispatch  interface {
		ordercontrollers.Resender
		controllers.ProviderInspector
	}
	Refunds   ordercontrollers.Refunder
	Reconcile ordercontrollers.Syncer
	Analytics controllers.EventCounter
}

// Probes are the dependencies /health/ready pings.
type Probes struct {
	DB    controllers.Pinger
	Redis controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	probes Probes,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		cfg.RateLimit.CheckoutEmailLimit,
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"admin-login",
		cfg.Admin.LoginWindow,
		cfg.Admin.LoginIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, probes.DB, probes.Redis))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.RateLimit(checkoutPolicy, redisClient, logg)).Post("/", controllers.Checkout(svc.Checkout, logg))
			r.Post("/quote", controllers.CheckoutQuote(svc.Checkout, logg))
		})

		r.With(middleware.RateLimit(loginPolicy, redisClient, logg)).Post("/admin/login", controllers.AdminLogin(svc.Auth, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.PaymentIntent(svc.Payments, logg))
			r.Post("/square/charge", controllers.SquareCharge(svc.Payments, logg))
			r.Post("/webhook", webhookcontrollers.StripeWebhook(svc.Payments, logg))
			r.Post("/webhook/square", webhookcontrollers.SquareWebhook(svc.Payments, logg))
			if !cfg.App.IsProd() {
				r.Post("/demo/simulate", controllers.DemoSimulate(svc.Payments, logg))
			}
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(auth.RoleAdmin, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(svc.Orders, logg))
				r.Patch("/", ordercontrollers.Patch(svc.Orders, logg))
				r.Delete("/", ordercontrollers.Delete(svc.Orders, logg))
				r.Post("/resend", ordercontrollers.Resend(svc.Dispatch, logg))
				r.Post("/refund", ordercontrollers.Refund(svc.Refunds, logg))
				r.Post("/sync", ordercontrollers.Sync(svc.Reconcile, logg))
			})
		})
		r.Post("/coupons", controllers.AdminCouponCreate(svc.Coupons, logg))
		r.Get("/analytics/events", controllers.AdminOrderEventCounts(svc.Analytics, logg, nil))
		r.Route("/providers/{providerId}", func(r chi.Router) {
			r.Get("/balance", controllers.AdminProviderBalance(svc.Dispatch, logg))
			r.Get("/services", controllers.AdminProviderServices(svc.Dispatch, logg))
		})
	})

	return otelhttp.NewHandler(r, "smm-api")
}
