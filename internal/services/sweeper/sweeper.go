package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// Repository пакетные переходы в expired.
type Repository interface {
	ExpireTrials(ctx context.Context, now time.Time, trialDays int) ([]models.ExpiredUser, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]models.ExpiredUser, error)
	StatusStats(ctx context.Context) (models.StatusStats, error)
}

// Publisher отправляет уведомления в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// CacheInvalidator сбрасывает закэшированных пользователей.
type CacheInvalidator interface {
	InvalidateUsers(ctx context.Context, ids ...string) error
}

// Result итог прохода.
type Result struct {
	TrialsExpired        int `json:"trialsExpired"`
	SubscriptionsExpired int `json:"subscriptionsExpired"`
}

// SweeperService периодически переводит в expired пользователей с истёкшим доступом.
type SweeperService struct {
	repo      Repository
	publisher Publisher
	cache     CacheInvalidator
	metrics   *metrics.Metrics
	trialDays int
	log       *slog.Logger
}

// NewSweeperService создаёт сервис. publisher, cache и m могут быть nil.
func NewSweeperService(repo Repository, publisher Publisher, cache CacheInvalidator,
	m *metrics.Metrics, trialDays int, log *slog.Logger) *SweeperService {
	if trialDays <= 0 {
		trialDays = access.DefaultTrialDays
	}
	return &SweeperService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		metrics:   m,
		trialDays: trialDays,
		log:       log,
	}
}

// Sweep выполняет один проход на момент now. Обновления условные, поэтому
// проход идемпотентен и безопасен параллельно с ленивыми переходами при чтении.
// Ошибка одной из частей не отменяет другую.
func (s *SweeperService) Sweep(ctx context.Context, now time.Time) (Result, error) {
	const op = "services.sweeper.Sweep"
	log := s.log.With(slog.String("op", op), slog.Time("now", now))
	started := time.Now()

	var (
		res  Result
		errs []error
	)

	trials, err := s.repo.ExpireTrials(ctx, now, s.trialDays)
	if err != nil {
		log.Error("failed to expire trials", sl.Err(err))
		errs = append(errs, err)
	}
	res.TrialsExpired = len(trials)

	subs, err := s.repo.ExpireSubscriptions(ctx, now)
	if err != nil {
		log.Error("failed to expire subscriptions", sl.Err(err))
		errs = append(errs, err)
	}
	res.SubscriptionsExpired = len(subs)

	expired := make([]models.ExpiredUser, 0, len(trials)+len(subs))
	expired = append(expired, trials...)
	expired = append(expired, subs...)
	s.invalidate(ctx, log, expired)
	s.notify(ctx, log, expired)

	s.metrics.Sweep(res.TrialsExpired, res.SubscriptionsExpired, time.Since(started))
	log.Info("sweep finished",
		slog.Int("trials_expired", res.TrialsExpired),
		slog.Int("subscriptions_expired", res.SubscriptionsExpired))
	s.logStats(ctx, log)

	if len(errs) > 0 {
		return res, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return res, nil
}

func (s *SweeperService) invalidate(ctx context.Context, log *slog.Logger, users []models.ExpiredUser) {
	if s.cache == nil || len(users) == 0 {
		return
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if err := s.cache.InvalidateUsers(ctx, ids...); err != nil {
		log.Warn("failed to invalidate cached users", sl.Err(err))
	}
}

func (s *SweeperService) notify(ctx context.Context, log *slog.Logger, users []models.ExpiredUser) {
	if s.publisher == nil {
		return
	}
	for _, u := range users {
		if err := s.publisher.Publish(ctx, rabbitmq.ExpiredRoutingKey, u); err != nil {
			log.Error("failed to publish expiry notification", sl.Err(err), sl.UserID(u.ID))
		}
	}
}

func (s *SweeperService) logStats(ctx context.Context, log *slog.Logger) {
	stats, err := s.repo.StatusStats(ctx)
	if err != nil {
		log.Warn("failed to load status stats", sl.Err(err))
		return
	}
	log.Info("user status stats",
		slog.Int("trial", stats.Trial),
		slog.Int("active", stats.Active),
		slog.Int("expired", stats.Expired),
		slog.Int("cancelled", stats.Cancelled),
		slog.Int("total", stats.Total))
}
