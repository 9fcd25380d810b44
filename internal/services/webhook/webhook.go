package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/metrics"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/period"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
	"github.com/magabrotheeeer/drivemetrics/internal/paymentprovider"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

const topicPayment = "payment"

// Outcome итог обработки уведомления.
type Outcome string

// Итоги обработки.
const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeActivated Outcome = "activated"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeWaiting   Outcome = "waiting"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// Notification уведомление MercadoPago. Провайдер присылает либо type и data.id
// в теле, либо topic и id в строке запроса.
type Notification struct {
	Type      string
	Topic     string
	Action    string
	PaymentID string
}

// IsPayment сообщает, относится ли уведомление к платежу.
func (n Notification) IsPayment() bool {
	return n.Type == topicPayment || n.Topic == topicPayment
}

// Repository операции хранилища для применения платежа.
type Repository interface {
	PaymentExists(ctx context.Context, providerPaymentID string) (bool, error)
	ActivateSubscription(ctx context.Context, a models.Activation) (*models.Subscription, error)
	CancelPendingSubscription(ctx context.Context, userID string, plan models.PlanType, providerPaymentID string) (bool, error)
}

// PaymentFetcher получает платёж у провайдера.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*paymentprovider.Payment, error)
}

// CacheInvalidator сбрасывает закэшированных пользователей.
type CacheInvalidator interface {
	InvalidateUsers(ctx context.Context, ids ...string) error
}

// Processor применяет уведомления о платежах к подпискам.
type Processor struct {
	repo    Repository
	fetcher PaymentFetcher
	cache   CacheInvalidator
	clock   clock.Clock
	metrics *metrics.Metrics
	timeout time.Duration
	log     *slog.Logger
}

// NewProcessor создаёт обработчик. cache и m могут быть nil.
func NewProcessor(repo Repository, fetcher PaymentFetcher, cache CacheInvalidator, clk clock.Clock,
	m *metrics.Metrics, timeout time.Duration, log *slog.Logger) *Processor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Processor{
		repo:    repo,
		fetcher: fetcher,
		cache:   cache,
		clock:   clk,
		metrics: m,
		timeout: timeout,
		log:     log,
	}
}

// HandleNotification обрабатывает уведомление и никогда не возвращает ошибку:
// провайдер в любом случае получает 200, а повторная доставка безопасна.
// Обработка не прерывается при отмене ctx вызывающей стороны.
func (p *Processor) HandleNotification(ctx context.Context, n Notification) Outcome {
	const op = "services.webhook.HandleNotification"
	log := p.log.With(slog.String("op", op),
		slog.String("type", n.Type), slog.String("topic", n.Topic), slog.String("payment_id", n.PaymentID))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	outcome := p.handle(ctx, log, n)
	p.metrics.WebhookEvent(string(outcome))
	return outcome
}

func (p *Processor) handle(ctx context.Context, log *slog.Logger, n Notification) Outcome {
	if !n.IsPayment() {
		log.Debug("notification ignored")
		return OutcomeIgnored
	}
	paymentID := strings.TrimSpace(n.PaymentID)
	if paymentID == "" {
		log.Warn("payment notification without payment id")
		return OutcomeInvalid
	}

	exists, err := p.repo.PaymentExists(ctx, paymentID)
	if err != nil {
		log.Error("failed to check payment", sl.Err(err))
		return OutcomeFailed
	}
	if exists {
		log.Info("payment already processed")
		return OutcomeDuplicate
	}

	payment, err := p.fetcher.GetPayment(ctx, paymentID)
	if err != nil {
		log.Error("failed to fetch payment from provider", sl.Err(err))
		if errors.Is(err, paymentprovider.ErrPaymentNotFound) {
			return OutcomeInvalid
		}
		return OutcomeFailed
	}

	ref, err := resolveReference(payment)
	if err != nil {
		log.Warn("cannot resolve payment owner",
			slog.String("external_reference", payment.ExternalReference), sl.Err(err))
		return OutcomeInvalid
	}
	log = log.With(sl.UserID(ref.UserID), slog.String("plan", string(ref.Plan)),
		slog.String("status", payment.Status))

	switch payment.Status {
	case paymentprovider.StatusApproved:
		return p.activate(ctx, log, paymentID, ref, payment)

	case paymentprovider.StatusRejected, paymentprovider.StatusCancelled:
		changed, err := p.repo.CancelPendingSubscription(ctx, ref.UserID, ref.Plan, paymentID)
		if err != nil {
			log.Error("failed to cancel pending subscription", sl.Err(err))
			return OutcomeFailed
		}
		log.Info("payment declined", slog.Bool("pending_cancelled", changed),
			slog.String("status_detail", payment.StatusDetail))
		return OutcomeCancelled

	default:
		log.Info("payment not final yet")
		return OutcomeWaiting
	}
}

func (p *Processor) activate(ctx context.Context, log *slog.Logger, paymentID string,
	ref paymentprovider.Reference, payment *paymentprovider.Payment) Outcome {
	paidAt := payment.PaidAt(p.clock.Now())
	endAt, ok := period.End(paidAt, ref.Plan)
	if !ok {
		log.Warn("unknown plan in payment")
		return OutcomeInvalid
	}

	sub, err := p.repo.ActivateSubscription(ctx, models.Activation{
		UserID:            ref.UserID,
		PlanType:          ref.Plan,
		ProviderPaymentID: paymentID,
		Amount:            payment.AmountMinor(),
		Currency:          payment.CurrencyID,
		PaymentStatus:     payment.Status,
		PaymentMethod:     payment.PaymentMethodID,
		PaidAt:            paidAt,
		EndAt:             endAt,
	})
	switch {
	case errors.Is(err, repository.ErrPaymentExists):
		log.Info("payment applied by concurrent delivery")
		return OutcomeDuplicate
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("payment references unknown user")
		return OutcomeInvalid
	case err != nil:
		log.Error("failed to activate subscription", sl.Err(err))
		return OutcomeFailed
	}

	if p.cache != nil {
		if err := p.cache.InvalidateUsers(ctx, ref.UserID); err != nil {
			log.Warn("failed to invalidate cached user", sl.Err(err))
		}
	}

	log.Info("subscription activated",
		slog.Int64("subscription_id", sub.ID), slog.Time("end_at", endAt))
	return OutcomeActivated
}

// resolveReference достаёт владельца платежа из external_reference,
// а если он повреждён, из metadata преференции. Идентификатор пользователя
// должен быть UUID.
func resolveReference(payment *paymentprovider.Payment) (paymentprovider.Reference, error) {
	ref, err := paymentprovider.ParseReference(payment.ExternalReference)
	if err != nil {
		userID := payment.MetadataString("user_id")
		plan, perr := models.ParsePlanType(payment.MetadataString("plan"))
		if userID == "" || perr != nil {
			return paymentprovider.Reference{}, err
		}
		ref = paymentprovider.Reference{UserID: userID, Plan: plan}
	}

	if _, err := uuid.Parse(ref.UserID); err != nil {
		return paymentprovider.Reference{}, fmt.Errorf("%w: user id %q: %w",
			paymentprovider.ErrBadReference, ref.UserID, err)
	}
	return ref, nil
}
