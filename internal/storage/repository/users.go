package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

const userColumns = `id, email, password_hash, full_name, phone, google_sub, created_at,
	trial_start_at, subscription_status, subscription_end_at, last_payment_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                  models.User
		passwordHash       sql.NullString
		phone, googleSub   sql.NullString
		endAt, lastPayment sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.FullName, &phone, &googleSub,
		&u.CreatedAt, &u.TrialStartAt, &u.SubscriptionStatus, &endAt, &lastPayment); err != nil {
		return nil, err
	}
	u.PasswordHash = passwordHash.String
	if phone.Valid {
		u.Phone = &phone.String
	}
	if googleSub.Valid {
		u.GoogleSub = &googleSub.String
	}
	if endAt.Valid {
		t := endAt.Time.UTC()
		u.SubscriptionEndAt = &t
	}
	if lastPayment.Valid {
		t := lastPayment.Time.UTC()
		u.LastPaymentAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.TrialStartAt = u.TrialStartAt.UTC()
	return &u, nil
}

// CreateUser сохраняет нового пользователя в статусе trial. TrialStartAt и CreatedAt
// берутся из переданной записи, email приводится к нижнему регистру.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (email, password_hash, full_name, phone, google_sub,
			      created_at, trial_start_at, subscription_status)
			  VALUES ($1, $2, $3, $4, $5, $6, $6, 'trial')
			  RETURNING ` + userColumns
	trialStart := user.TrialStartAt
	if trialStart.IsZero() {
		trialStart = time.Now().UTC()
	}
	row := s.DB.QueryRowContext(ctx, query,
		strings.ToLower(strings.TrimSpace(user.Email)), nullString(user.PasswordHash),
		user.FullName, user.Phone, user.GoogleSub, trialStart)

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetUser возвращает пользователя по id.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUser"
	return s.getUserBy(ctx, op, "id = $1", id)
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	return s.getUserBy(ctx, op, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

// GetUserByGoogleSub возвращает пользователя по идентификатору Google-аккаунта.
func (s *Storage) GetUserByGoogleSub(ctx context.Context, sub string) (*models.User, error) {
	const op = "storage.GetUserByGoogleSub"
	return s.getUserBy(ctx, op, "google_sub = $1", sub)
}

func (s *Storage) getUserBy(ctx context.Context, op, where string, arg any) (*models.User, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// LinkGoogleAccount привязывает Google-аккаунт к существующему пользователю.
func (s *Storage) LinkGoogleAccount(ctx context.Context, userID, sub string) error {
	const op = "storage.LinkGoogleAccount"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET google_sub = $2, updated_at = now() WHERE id = $1`, userID, sub)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}

// MarkExpired переводит пользователя из статуса from в expired, если срок действительно
// прошёл к моменту now. Возвращает false, если переход уже выполнен кем-то другим
// или статус изменился.
func (s *Storage) MarkExpired(ctx context.Context, userID string, from models.Status, now time.Time, trialDays int) (bool, error) {
	const op = "storage.MarkExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var query string
	var args []any
	switch from {
	case models.StatusTrial:
		query = `UPDATE users SET subscription_status = 'expired', updated_at = now()
				 WHERE id = $1 AND subscription_status = 'trial'
				   AND trial_start_at <= $2`
		args = []any{userID, access.TrialCutoff(now, trialDays)}
	case models.StatusActive:
		query = `UPDATE users SET subscription_status = 'expired', updated_at = now()
				 WHERE id = $1 AND subscription_status = 'active'
				   AND (subscription_end_at IS NULL OR subscription_end_at <= $2)`
		args = []any{userID, now}
	default:
		return false, fmt.Errorf("%s: cannot expire from status %q", op, from)
	}

	var changed bool
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		if changed && from == models.StatusActive {
			_, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = 'expired', updated_at = now()
					  WHERE user_id = $1 AND status = 'active'`, userID)
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return changed, nil
}

// CancelUserSubscription отменяет доступ пользователя по его запросу.
// Разрешено только из trial и active; возвращает false, если статус другой.
func (s *Storage) CancelUserSubscription(ctx context.Context, userID string) (bool, error) {
	const op = "storage.CancelUserSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var changed bool
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET subscription_status = 'cancelled', updated_at = now()
				  WHERE id = $1 AND subscription_status IN ('trial', 'active')`, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		if !changed {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = 'cancelled', updated_at = now()
				  WHERE user_id = $1 AND status IN ('active', 'pending')`, userID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return changed, nil
}

// StatusStats считает пользователей по статусам.
func (s *Storage) StatusStats(ctx context.Context) (models.StatusStats, error) {
	const op = "storage.StatusStats"
	var stats models.StatusStats
	if err := checkCtx(ctx, op); err != nil {
		return stats, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT subscription_status, COUNT(*) FROM users GROUP BY subscription_status`)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var status models.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("%s: %w", op, err)
		}
		switch status {
		case models.StatusTrial:
			stats.Trial = n
		case models.StatusActive:
			stats.Active = n
		case models.StatusExpired:
			stats.Expired = n
		case models.StatusCancelled:
			stats.Cancelled = n
		}
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
