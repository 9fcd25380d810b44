package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
	"github.com/magabrotheeeer/drivemetrics/internal/paymentprovider"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

var (
	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownPlan тариф отсутствует в каталоге.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrNotCancellable подписку в текущем статусе отменить нельзя.
	ErrNotCancellable = errors.New("subscription cannot be cancelled in current status")
	// ErrProvider платёжный провайдер вернул ошибку.
	ErrProvider = errors.New("payment provider error")
)

// Repository операции хранилища, нужные сервису.
type Repository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	MarkExpired(ctx context.Context, userID string, from models.Status, now time.Time, trialDays int) (bool, error)
	CreatePendingSubscription(ctx context.Context, userID string, plan models.PlanType,
		amount int64, currency, preferenceID string) (*models.Subscription, error)
	CancelUserSubscription(ctx context.Context, userID string) (bool, error)
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
}

// UserCache кэш записей пользователей.
type UserCache interface {
	GetUser(ctx context.Context, id string) (*models.User, bool, error)
	SetUser(ctx context.Context, u *models.User) error
	InvalidateUsers(ctx context.Context, ids ...string) error
}

// PreferenceCreator создаёт платёжные преференции у провайдера.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req paymentprovider.PreferenceRequest) (*paymentprovider.Preference, error)
}

// Options настройки сервиса.
type Options struct {
	TrialDays     int
	FrontendURL   string
	BackendURL    string
	PreferenceTTL time.Duration
	Catalog       models.Catalog
}

// SubscriptionService проверяет доступ, оформляет оплату и отменяет подписки.
type SubscriptionService struct {
	repo     Repository
	cache    UserCache
	provider PreferenceCreator
	clock    clock.Clock
	metrics  *metrics.Metrics
	opts     Options
	log      *slog.Logger
}

// NewSubscriptionService создаёт сервис. cache и m могут быть nil.
func NewSubscriptionService(repo Repository, cache UserCache, provider PreferenceCreator, clk clock.Clock,
	m *metrics.Metrics, opts Options, log *slog.Logger) *SubscriptionService {
	if opts.TrialDays <= 0 {
		opts.TrialDays = access.DefaultTrialDays
	}
	if opts.PreferenceTTL <= 0 {
		opts.PreferenceTTL = 24 * time.Hour
	}
	return &SubscriptionService{
		repo:     repo,
		cache:    cache,
		provider: provider,
		clock:    clk,
		metrics:  m,
		opts:     opts,
		log:      log,
	}
}

// Status вычисляет решение о доступе. Устаревшая запись переводится в expired
// условным UPDATE, поэтому вызов безопасен параллельно с фоновым проходом и вебхуком.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (access.Decision, error) {
	const op = "services.subscription.Status"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))

	u, cached, err := s.loadUser(ctx, userID)
	if err != nil {
		return access.Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	d := access.Evaluate(*u, now, s.opts.TrialDays)
	if cached && d.Access == access.Denied && !d.NeedsTransition {
		// отказ по кэшу не окончательный: оплата могла пройти после записи в кэш
		fresh, err := s.repo.GetUser(ctx, u.ID)
		if err != nil {
			return access.Decision{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
		}
		if fresh.SubscriptionStatus != u.SubscriptionStatus {
			s.storeCached(ctx, fresh)
		}
		u = fresh
		d = access.Evaluate(*u, now, s.opts.TrialDays)
	}
	if d.NeedsTransition {
		changed, err := s.repo.MarkExpired(ctx, u.ID, u.SubscriptionStatus, now, s.opts.TrialDays)
		switch {
		case err != nil:
			log.Error("failed to mark user expired", sl.Err(err))
		case changed:
			s.metrics.LazyExpiration()
			log.Info("user access expired on read", slog.String("from", string(u.SubscriptionStatus)))
			s.invalidate(ctx, log, u.ID)
		default:
			// запись уже изменил кто-то другой
			s.invalidate(ctx, log, u.ID)
			fresh, err := s.repo.GetUser(ctx, u.ID)
			if err != nil {
				return access.Decision{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
			}
			d = access.Evaluate(*fresh, now, s.opts.TrialDays)
		}
	}

	s.metrics.AccessDecision(string(d.Mode))
	return d, nil
}

func (s *SubscriptionService) loadUser(ctx context.Context, userID string) (*models.User, bool, error) {
	if s.cache != nil {
		u, found, err := s.cache.GetUser(ctx, userID)
		if err != nil {
			s.log.Warn("user cache read failed", sl.Err(err), sl.UserID(userID))
		}
		if found {
			return u, true, nil
		}
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, false, mapNotFound(err)
	}
	s.storeCached(ctx, u)
	return u, false, nil
}

func (s *SubscriptionService) storeCached(ctx context.Context, u *models.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetUser(ctx, u); err != nil {
		s.log.Warn("user cache write failed", sl.Err(err), sl.UserID(u.ID))
	}
}

func (s *SubscriptionService) invalidate(ctx context.Context, log *slog.Logger, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUsers(ctx, userID); err != nil {
		log.Warn("failed to invalidate cached user", sl.Err(err))
	}
}

// PreferenceResult ответ на запрос оплаты.
type PreferenceResult struct {
	PreferenceID       string      `json:"preferenceId"`
	CheckoutURL        string      `json:"checkoutUrl"`
	SandboxCheckoutURL string      `json:"sandboxCheckoutUrl,omitempty"`
	SubscriptionID     int64       `json:"subscriptionId"`
	Plan               models.Plan `json:"plan"`
}

// CreatePaymentPreference создаёт преференцию MercadoPago на тариф и pending-подписку.
// Повторный запрос на тот же тариф переиспользует pending-подписку.
func (s *SubscriptionService) CreatePaymentPreference(ctx context.Context, userID string, planType models.PlanType) (*PreferenceResult, error) {
	const op = "services.subscription.CreatePaymentPreference"
	log := s.log.With(slog.String("op", op), sl.UserID(userID), slog.String("plan", string(planType)))

	plan, ok := s.opts.Catalog.Lookup(planType)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownPlan, planType)
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.opts.PreferenceTTL)
	frontend := strings.TrimRight(s.opts.FrontendURL, "/")

	req := paymentprovider.PreferenceRequest{
		Items: []paymentprovider.PreferenceItem{{
			ID:         string(plan.Type),
			Title:      plan.Title,
			Quantity:   1,
			UnitPrice:  float64(plan.Price) / 100,
			CurrencyID: plan.Currency,
		}},
		Payer: paymentprovider.Payer{Email: u.Email, Name: u.FullName},
		BackURLs: paymentprovider.BackURLs{
			Success: frontend + "/payment/success",
			Failure: frontend + "/payment/failure",
			Pending: frontend + "/payment/pending",
		},
		AutoReturn:          "approved",
		ExternalReference:   paymentprovider.FormatReference(u.ID, plan.Type, now),
		NotificationURL:     strings.TrimRight(s.opts.BackendURL, "/") + "/api/v1/payments/webhook",
		StatementDescriptor: "DRIVEMETRICS",
		Expires:             true,
		ExpirationDateFrom:  &now,
		ExpirationDateTo:    &expiresAt,
		Metadata: map[string]string{
			"user_id": u.ID,
			"plan":    string(plan.Type),
		},
	}

	pref, err := s.provider.CreatePreference(ctx, req)
	if err != nil {
		log.Error("failed to create payment preference", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}

	sub, err := s.repo.CreatePendingSubscription(ctx, u.ID, plan.Type, plan.Price, plan.Currency, pref.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("payment preference created",
		slog.String("preference_id", pref.ID), slog.Int64("subscription_id", sub.ID))

	return &PreferenceResult{
		PreferenceID:       pref.ID,
		CheckoutURL:        pref.InitPoint,
		SandboxCheckoutURL: pref.SandboxInitPoint,
		SubscriptionID:     sub.ID,
		Plan:               plan,
	}, nil
}

// Cancel отменяет доступ пользователя. Разрешено из trial и active.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) error {
	const op = "services.subscription.Cancel"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))

	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	changed, err := s.repo.CancelUserSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !changed {
		return fmt.Errorf("%s: %w", op, ErrNotCancellable)
	}

	s.invalidate(ctx, log, userID)
	log.Info("subscription cancelled by user")
	return nil
}

// History возвращает платежи пользователя, новые первыми.
func (s *SubscriptionService) History(ctx context.Context, userID string) ([]models.Payment, error) {
	const op = "services.subscription.History"
	payments, err := s.repo.ListPayments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}

// Plans возвращает тарифы каталога: сначала месячный, затем годовой.
func (s *SubscriptionService) Plans() []models.Plan {
	plans := make([]models.Plan, 0, len(s.opts.Catalog))
	for _, t := range []models.PlanType{models.PlanMonthly, models.PlanAnnual} {
		if p, ok := s.opts.Catalog.Lookup(t); ok {
			plans = append(plans, p)
		}
	}
	return plans
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrUserNotFound, err)
	}
	return err
}
