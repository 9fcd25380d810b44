package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/auth/google"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/health"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/payment/history"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/premium"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/subscription/plans"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/subscription/preference"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	authservice "github.com/magabrotheeeer/drivemetrics/internal/services/auth"
	subservice "github.com/magabrotheeeer/drivemetrics/internal/services/subscription"
	webhookservice "github.com/magabrotheeeer/drivemetrics/internal/services/webhook"
)

// Deps зависимости маршрутов.
type Deps struct {
	Log           *slog.Logger
	Auth          *authservice.AuthService
	Subscriptions *subservice.SubscriptionService
	Webhooks      *webhookservice.Processor
	Limiter       *middlewarectx.IPRateLimiter
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Health        map[string]health.Pinger
	WebhookSecret string
	FrontendURL   string
	Clock         clock.Clock
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Deps) {
	logger := d.Log

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middlewarectx.RequestMetrics(d.Metrics),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(d.Limiter, logger))

		// Открытые конечные точки
		r.Post("/register", register.New(logger, d.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, d.Auth).ServeHTTP)
		r.Get("/auth/google", google.NewStart(logger, d.Auth).ServeHTTP)
		r.Get("/auth/google/callback", google.NewCallback(logger, d.Auth, d.FrontendURL).ServeHTTP)
		r.Get("/plans", plans.New(d.Subscriptions).ServeHTTP)

		// Webhook endpoint (без аутентификации)
		r.Post("/payments/webhook", webhook.New(logger, d.Webhooks, d.WebhookSecret, d.Clock).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Auth, logger))
			r.Get("/subscription/status", status.New(logger, d.Subscriptions).ServeHTTP)
			r.Post("/subscription/payment-preference", preference.New(logger, d.Subscriptions).ServeHTTP)
			r.Post("/subscription/cancel", cancel.New(logger, d.Subscriptions).ServeHTTP)
			r.Get("/payments/history", history.New(logger, d.Subscriptions).ServeHTTP)

			// Платные разделы
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AccessMiddleware(d.Subscriptions, logger))
				r.Get("/premium/metrics", premium.NewMetrics(logger).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, d.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
