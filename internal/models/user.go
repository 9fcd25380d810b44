// Package models содержит доменные структуры DriveMetrics: пользователя
// с его состоянием доступа, подписки, платежи и каталог тарифов.
package models

import "time"

// Status — состояние доступа пользователя к сервису.
type Status string

const (
	// StatusTrial — бесплатный пробный период.
	StatusTrial Status = "trial"
	// StatusActive — оплаченная подписка.
	StatusActive Status = "active"
	// StatusExpired — пробный период или подписка истекли.
	StatusExpired Status = "expired"
	// StatusCancelled — пользователь отменил подписку.
	StatusCancelled Status = "cancelled"
)

// Valid сообщает, входит ли значение в перечисление.
func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// User представляет зарегистрированного водителя.
// TrialStartAt задаётся один раз при создании и больше не меняется.
// SubscriptionEndAt заполнен тогда и только тогда, когда статус становился active.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	FullName           string     `json:"full_name"`
	Phone              *string    `json:"phone,omitempty"`
	GoogleSub          *string    `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	TrialStartAt       time.Time  `json:"trial_start_at"`
	SubscriptionStatus Status     `json:"subscription_status"`
	SubscriptionEndAt  *time.Time `json:"subscription_end_at,omitempty"`
	LastPaymentAt      *time.Time `json:"last_payment_at,omitempty"`
}

// ExpiredUser — пользователь, переведённый в expired пакетным обновлением.
type ExpiredUser struct {
	ID     string `json:"user_id"`
	Email  string `json:"email"`
	From   Status `json:"from"`
	Reason string `json:"reason"`
}

// StatusStats — количество пользователей по статусам.
type StatusStats struct {
	Trial     int `json:"trial"`
	Active    int `json:"active"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}
