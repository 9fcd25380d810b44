// Package access решает, есть ли у пользователя доступ к платным функциям.
//
// Evaluate — чистая функция: читает только переданную запись пользователя и момент now,
// ничего не пишет и никогда не возвращает ошибку. Если решение требует перевести
// пользователя в expired, это отражается флагом NeedsTransition, а сам переход
// выполняет вызывающий код через хранилище.
package access

import (
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// DefaultTrialDays длительность пробного периода, если не задана конфигом.
const DefaultTrialDays = 15

// Level уровень доступа.
type Level string

// Уровни доступа.
const (
	Full   Level = "full"
	Denied Level = "denied"
)

// Mode объясняет, почему выдан тот или иной уровень доступа.
type Mode string

// Режимы решения.
const (
	ModeTrial        Mode = "trial"
	ModePaid         Mode = "paid"
	ModeExpiredTrial Mode = "expired-trial"
	ModeExpiredPaid  Mode = "expired-paid"
	ModeExpired      Mode = "expired"
	ModeCancelled    Mode = "cancelled"
)

// Decision результат проверки доступа.
type Decision struct {
	Access            Level      `json:"access"`
	Mode              Mode       `json:"mode"`
	DaysLeft          int        `json:"daysLeft"`
	HoursLeft         int        `json:"hoursLeft"`
	TrialEndsAt       *time.Time `json:"trialEndsAt,omitempty"`
	SubscriptionEndAt *time.Time `json:"subscriptionEndAt,omitempty"`
	// NeedsTransition: запись пользователя устарела и должна быть переведена в expired.
	NeedsTransition bool `json:"-"`
}

// Allowed сообщает, открыт ли доступ.
func (d Decision) Allowed() bool {
	return d.Access == Full
}

// TrialEnd возвращает момент окончания пробного периода (не включительно).
func TrialEnd(trialStartAt time.Time, trialDays int) time.Time {
	return trialStartAt.Add(trialLength(trialDays))
}

// TrialCutoff возвращает самое позднее начало пробного периода, который к моменту now
// уже закончился: TrialEnd(start) <= now тогда и только тогда, когда start <= TrialCutoff(now).
func TrialCutoff(now time.Time, trialDays int) time.Time {
	return now.Add(-trialLength(trialDays))
}

func trialLength(trialDays int) time.Duration {
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	return time.Duration(trialDays) * 24 * time.Hour
}

// Evaluate вычисляет решение для пользователя u в момент now.
// Интервалы полуоткрытые: в момент окончания доступ уже закрыт.
func Evaluate(u models.User, now time.Time, trialDays int) Decision {
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}

	switch u.SubscriptionStatus {
	case models.StatusTrial:
		trialEnd := TrialEnd(u.TrialStartAt, trialDays)
		d := Decision{TrialEndsAt: &trialEnd}
		if !now.Before(trialEnd) {
			d.Access, d.Mode, d.NeedsTransition = Denied, ModeExpiredTrial, true
			return d
		}
		d.Access, d.Mode = Full, ModeTrial
		if now.Before(u.TrialStartAt) {
			d.DaysLeft, d.HoursLeft = trialDays, trialDays*24
			return d
		}
		d.DaysLeft, d.HoursLeft = remaining(trialEnd.Sub(now))
		return d

	case models.StatusActive:
		if u.SubscriptionEndAt == nil {
			return Decision{Access: Denied, Mode: ModeExpiredPaid, NeedsTransition: true}
		}
		end := *u.SubscriptionEndAt
		d := Decision{SubscriptionEndAt: &end}
		if !now.Before(end) {
			d.Access, d.Mode, d.NeedsTransition = Denied, ModeExpiredPaid, true
			return d
		}
		d.Access, d.Mode = Full, ModePaid
		d.DaysLeft, d.HoursLeft = remaining(end.Sub(now))
		return d

	case models.StatusExpired:
		return Decision{Access: Denied, Mode: ModeExpired, SubscriptionEndAt: u.SubscriptionEndAt}

	case models.StatusCancelled:
		return Decision{Access: Denied, Mode: ModeCancelled, SubscriptionEndAt: u.SubscriptionEndAt}

	default:
		return Decision{Access: Denied, Mode: ModeExpired}
	}
}

// remaining округляет остаток вверх до целых суток и часов.
func remaining(left time.Duration) (days, hours int) {
	if left <= 0 {
		return 0, 0
	}
	return int(ceilDiv(left, 24*time.Hour)), int(ceilDiv(left, time.Hour))
}

func ceilDiv(a, b time.Duration) time.Duration {
	return (a + b - 1) / b
}
