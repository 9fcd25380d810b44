package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// Причины перевода в expired.
const (
	ReasonTrialEnded        = "trial_ended"
	ReasonSubscriptionEnded = "subscription_ended"
)

// ExpireTrials переводит в expired всех пользователей, чей пробный период
// закончился к моменту now. Повторный вызов ничего не меняет.
func (s *Storage) ExpireTrials(ctx context.Context, now time.Time, trialDays int) ([]models.ExpiredUser, error) {
	const op = "storage.ExpireTrials"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `UPDATE users
			  SET subscription_status = 'expired', updated_at = now()
			  WHERE subscription_status = 'trial'
			    AND trial_start_at <= $1
			  RETURNING id, email`, access.TrialCutoff(now, trialDays))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := collectExpired(rows, models.StatusTrial, ReasonTrialEnded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// ExpireSubscriptions переводит в expired пользователей с оплаченной подпиской,
// срок которой прошёл к моменту now, и закрывает их active-подписки.
func (s *Storage) ExpireSubscriptions(ctx context.Context, now time.Time) ([]models.ExpiredUser, error) {
	const op = "storage.ExpireSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var users []models.ExpiredUser
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `UPDATE users
				  SET subscription_status = 'expired', updated_at = now()
				  WHERE subscription_status = 'active'
				    AND subscription_end_at IS NOT NULL
				    AND subscription_end_at <= $1
				  RETURNING id, email`, now)
		if err != nil {
			return err
		}
		users, err = collectExpired(rows, models.StatusActive, ReasonSubscriptionEnded)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE subscriptions
				  SET status = 'expired', updated_at = now()
				  WHERE status = 'active' AND end_at <= $1`, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func collectExpired(rows *sql.Rows, from models.Status, reason string) ([]models.ExpiredUser, error) {
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.ExpiredUser, 0)
	for rows.Next() {
		u := models.ExpiredUser{From: from, Reason: reason}
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
