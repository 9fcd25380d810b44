package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// RecordPayment добавляет строку в журнал платежей и возвращает её id.
// Дубликат по идентификатору провайдера возвращает ErrPaymentExists.
func (s *Storage) RecordPayment(ctx context.Context, p models.Payment) (int64, error) {
	const op = "storage.RecordPayment"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	id, err := recordPayment(ctx, s.DB, p)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, ErrPaymentExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func recordPayment(ctx context.Context, q querier, p models.Payment) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `INSERT INTO payments
			  (user_id, subscription_id, provider_payment_id, amount, currency, status, payment_method, paid_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id`,
		p.UserID, p.SubscriptionID, p.ProviderPaymentID, p.Amount, p.Currency,
		p.Status, p.PaymentMethod, p.PaidAt).Scan(&id)
	return id, err
}

// PaymentExists сообщает, учтён ли уже платёж провайдера.
func (s *Storage) PaymentExists(ctx context.Context, providerPaymentID string) (bool, error) {
	const op = "storage.PaymentExists"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	exists, err := paymentExists(ctx, s.DB, providerPaymentID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

func paymentExists(ctx context.Context, q querier, providerPaymentID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE provider_payment_id = $1)`,
		providerPaymentID).Scan(&exists)
	return exists, err
}

// ListPayments возвращает историю платежей пользователя с типом тарифа, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	const op = "storage.ListPayments"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT p.id, p.user_id, p.subscription_id, p.provider_payment_id,
			      p.amount, p.currency, p.status, p.payment_method, p.paid_at, s.plan_type
			  FROM payments p
			  LEFT JOIN subscriptions s ON s.id = p.subscription_id
			  WHERE p.user_id = $1
			  ORDER BY p.paid_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.Payment, 0)
	for rows.Next() {
		var (
			p      models.Payment
			subID  sql.NullInt64
			planTy sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.UserID, &subID, &p.ProviderPaymentID, &p.Amount, &p.Currency,
			&p.Status, &p.PaymentMethod, &p.PaidAt, &planTy); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if subID.Valid {
			p.SubscriptionID = &subID.Int64
		}
		if planTy.Valid {
			pt := models.PlanType(planTy.String)
			p.PlanType = &pt
		}
		p.PaidAt = p.PaidAt.UTC()
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
