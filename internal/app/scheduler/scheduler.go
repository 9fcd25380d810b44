// Package scheduler периодически переводит просроченные пробные периоды
// и подписки в expired и публикует уведомления в RabbitMQ.
package scheduler

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/drivemetrics/internal/cache"
	"github.com/magabrotheeeer/drivemetrics/internal/config"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	sweeperservice "github.com/magabrotheeeer/drivemetrics/internal/services/sweeper"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

const (
	dbRetries       = 10
	dbRetryDelay    = 3 * time.Second
	sweepTimeout    = 5 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Sweeper выполняет один проход.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (sweeperservice.Result, error)
}

// App представляет приложение планировщика.
type App struct {
	cron    *cron.Cron
	job     func()
	metrics *http.Server
	db      *repository.Storage
	cache   *cache.Cache
	conn    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range dbRetries {
		if err = db.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbRetryDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sweeper := sweeperservice.NewSweeperService(db, rabbitmq.NewPublisher(ch), cacheRedis,
		metrics.New(reg), cfg.Access.TrialDays, logger)

	c := cron.New(
		cron.WithLogger(cronLogger{log: logger}),
		cron.WithChain(cron.Recover(cronLogger{log: logger}), cron.SkipIfStillRunning(cronLogger{log: logger})),
	)
	job := sweepJob(ctx, sweeper, clock.Real{}, logger)
	if _, err := c.AddFunc(cfg.Access.SweepSchedule, job); err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Access.SweepSchedule, err)
	}

	return &App{
		cron: c,
		job:  job,
		metrics: &http.Server{
			Addr:              cfg.Access.MetricsAddress,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		},
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
		ch:     ch,
		logger: logger,
	}, nil
}

// metricsHandler отдаёт метрики проходов для Prometheus.
func metricsHandler(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}

// sweepJob проход с ограничением по времени. Ошибки только логируются:
// следующий запуск повторит то, что не удалось.
func sweepJob(ctx context.Context, s Sweeper, clk clock.Clock, logger *slog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()

		res, err := s.Sweep(ctx, clk.Now())
		if err != nil {
			logger.Error("sweep finished with errors", sl.Err(err),
				slog.Int("trials_expired", res.TrialsExpired),
				slog.Int("subscriptions_expired", res.SubscriptionsExpired))
		}
	}
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run выполняет проход сразу при старте, затем по расписанию до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	a.job()
	a.cron.Start()

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")
	<-a.cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.metrics.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	closeResources(a.ch, a.conn, a.logger)
	return nil
}

// cronLogger направляет журнал cron в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{sl.Err(err)}, keysAndValues...)...)
}
