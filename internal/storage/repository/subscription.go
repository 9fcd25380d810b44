package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

const subscriptionColumns = `id, user_id, plan_type, status, start_at, end_at, amount, currency,
	provider_preference_id, provider_payment_id, created_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub          models.Subscription
		start, endAt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanType, &sub.Status, &start, &endAt,
		&sub.Amount, &sub.Currency, &sub.ProviderPreferenceID, &sub.ProviderPaymentID,
		&sub.CreatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time.UTC()
		sub.StartAt = &t
	}
	if endAt.Valid {
		t := endAt.Time.UTC()
		sub.EndAt = &t
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	return &sub, nil
}

// CreatePendingSubscription создаёт pending-подписку на тариф. Если у пользователя
// уже есть pending-подписка на этот тариф, новая строка не создаётся: существующая
// получает свежий preferenceID и сумму и возвращается вызывающему.
func (s *Storage) CreatePendingSubscription(ctx context.Context, userID string, plan models.PlanType,
	amount int64, currency, preferenceID string) (*models.Subscription, error) {
	const op = "storage.CreatePendingSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO subscriptions (user_id, plan_type, status, amount, currency, provider_preference_id)
			  VALUES ($1, $2, 'pending', $3, $4, $5)
			  ON CONFLICT (user_id, plan_type) WHERE status = 'pending'
			  DO UPDATE SET provider_preference_id = EXCLUDED.provider_preference_id,
			                amount = EXCLUDED.amount,
			                currency = EXCLUDED.currency,
			                updated_at = now()
			  RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, plan, amount, currency, preferenceID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// LatestPendingSubscription возвращает самую свежую pending-подписку пользователя.
func (s *Storage) LatestPendingSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	const op = "storage.LatestPendingSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status = 'pending'
			  ORDER BY created_at DESC, id DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ActivateSubscription применяет подтверждённую оплату одной транзакцией:
// pending-подписка тарифа становится active (или создаётся, если pending нет),
// предыдущая active-подписка пользователя закрывается, пользователь получает статус
// active с новым сроком, в журнал платежей добавляется строка.
// Повторная доставка того же платежа возвращает ErrPaymentExists и ничего не меняет.
func (s *Storage) ActivateSubscription(ctx context.Context, a models.Activation) (*models.Subscription, error) {
	const op = "storage.ActivateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var activated *models.Subscription
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, a.UserID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		exists, err := paymentExists(ctx, tx, a.ProviderPaymentID)
		if err != nil {
			return err
		}
		if exists {
			return ErrPaymentExists
		}

		if _, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = 'expired', updated_at = now()
				  WHERE user_id = $1 AND status = 'active'`, a.UserID); err != nil {
			return err
		}

		activated, err = scanSubscription(tx.QueryRowContext(ctx, `UPDATE subscriptions
				  SET status = 'active', start_at = $3, end_at = $4, provider_payment_id = $5, updated_at = now()
				  WHERE id = (
				      SELECT id FROM subscriptions
				      WHERE user_id = $1 AND plan_type = $2 AND status = 'pending'
				      ORDER BY created_at DESC LIMIT 1
				      FOR UPDATE)
				  RETURNING `+subscriptionColumns,
			a.UserID, a.PlanType, a.PaidAt, a.EndAt, a.ProviderPaymentID))
		if errors.Is(err, sql.ErrNoRows) {
			activated, err = scanSubscription(tx.QueryRowContext(ctx, `INSERT INTO subscriptions
					  (user_id, plan_type, status, start_at, end_at, amount, currency, provider_payment_id)
					  VALUES ($1, $2, 'active', $3, $4, $5, $6, $7)
					  RETURNING `+subscriptionColumns,
				a.UserID, a.PlanType, a.PaidAt, a.EndAt, a.Amount, a.Currency, a.ProviderPaymentID))
		}
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `UPDATE users
				  SET subscription_status = 'active', subscription_end_at = $2,
				      last_payment_at = $3, updated_at = now()
				  WHERE id = $1`, a.UserID, a.EndAt, a.PaidAt); err != nil {
			return err
		}

		_, err = recordPayment(ctx, tx, models.Payment{
			UserID:            a.UserID,
			SubscriptionID:    &activated.ID,
			ProviderPaymentID: a.ProviderPaymentID,
			Amount:            a.Amount,
			Currency:          a.Currency,
			Status:            a.PaymentStatus,
			PaymentMethod:     a.PaymentMethod,
			PaidAt:            a.PaidAt,
		})
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrPaymentExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return activated, nil
}

// CancelPendingSubscription помечает последнюю pending-подписку пользователя на тариф
// как cancelled после отклонённого платежа. Пустой plan означает любой тариф.
// Статус пользователя не меняется. Возвращает false, если отменять нечего
// или отказ с этим providerPaymentID уже учтён.
func (s *Storage) CancelPendingSubscription(ctx context.Context, userID string, plan models.PlanType,
	providerPaymentID string) (bool, error) {
	const op = "storage.CancelPendingSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions
			  SET status = 'cancelled', provider_payment_id = $3, updated_at = now()
			  WHERE id = (
			      SELECT id FROM subscriptions
			      WHERE user_id = $1 AND status = 'pending' AND ($2 = '' OR plan_type = $2)
			      ORDER BY created_at DESC LIMIT 1
			      FOR UPDATE)
			    AND ($3 = '' OR NOT EXISTS (
			      SELECT 1 FROM subscriptions WHERE provider_payment_id = $3))`
	res, err := s.DB.ExecContext(ctx, query, userID, string(plan), providerPaymentID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ListSubscriptions возвращает подписки пользователя, новые первыми.
func (s *Storage) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+subscriptionColumns+`
			  FROM subscriptions WHERE user_id = $1
			  ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
