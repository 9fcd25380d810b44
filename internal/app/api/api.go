// Package api собирает HTTP API DriveMetrics: хранилище, кэш, клиента
// MercadoPago, сервисы доступа и маршруты.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/magabrotheeeer/drivemetrics/internal/cache"
	"github.com/magabrotheeeer/drivemetrics/internal/config"
	"github.com/magabrotheeeer/drivemetrics/internal/http/handlers/health"
	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/jwt"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/migrations"
	"github.com/magabrotheeeer/drivemetrics/internal/paymentprovider"
	authservice "github.com/magabrotheeeer/drivemetrics/internal/services/auth"
	subservice "github.com/magabrotheeeer/drivemetrics/internal/services/subscription"
	webhookservice "github.com/magabrotheeeer/drivemetrics/internal/services/webhook"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервер с зависимостями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New подключается к Postgres и Redis, накатывает миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.api.New"

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var google authservice.IdentityProvider
	if cfg.Google.Enabled() {
		provider, err := authservice.NewGoogleProvider(ctx, cfg.Google)
		if err != nil {
			// вход по паролю работает и без Google
			logger.Error("google sign-in disabled", sl.Err(err))
		} else {
			google = provider
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clk := clock.Real{}
	mp := paymentprovider.NewClient(cfg.MercadoPago)

	authService := authservice.NewAuthService(db, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), google, clk, logger)
	subscriptionService := subservice.NewSubscriptionService(db, cacheRedis, mp, clk, m, subservice.Options{
		TrialDays:     cfg.Access.TrialDays,
		FrontendURL:   cfg.FrontendURL,
		BackendURL:    cfg.BackendURL,
		PreferenceTTL: cfg.MercadoPago.PreferenceTTL,
		Catalog:       cfg.Plans.Catalog(),
	}, logger)
	processor := webhookservice.NewProcessor(db, mp, cacheRedis, clk, m, 0, logger)

	if cfg.MercadoPago.AccessToken == "" {
		logger.Warn("mercadopago access token is empty, payments will fail")
	}

	router := chi.NewRouter()
	RegisterRoutes(router, Deps{
		Log:           logger,
		Auth:          authService,
		Subscriptions: subscriptionService,
		Webhooks:      processor,
		Limiter:       middlewarectx.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Metrics:       m,
		Gatherer:      reg,
		Health: map[string]health.Pinger{
			"postgres": db,
			"redis":    cacheRedis,
		},
		WebhookSecret: cfg.MercadoPago.WebhookSecret,
		FrontendURL:   cfg.FrontendURL,
		Clock:         clk,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
