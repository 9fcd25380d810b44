package models

import "time"

// SubscriptionStatus — состояние записи о подписке.
type SubscriptionStatus string

const (
	// SubscriptionPending — создана платёжная преференция, оплаты ещё нет.
	SubscriptionPending SubscriptionStatus = "pending"
	// SubscriptionActive — оплата подтверждена провайдером.
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionCancelled — платёж отклонён или отменён.
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	// SubscriptionExpired — срок оплаченного периода прошёл или подписку сменила новая оплата.
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription — попытка оформить или действующая платная подписка.
// У пользователя не больше одной pending-записи на тариф и не больше одной active.
type Subscription struct {
	ID                   int64              `json:"id"`
	UserID               string             `json:"user_id"`
	PlanType             PlanType           `json:"plan_type"`
	Status               SubscriptionStatus `json:"status"`
	StartAt              *time.Time         `json:"start_at,omitempty"`
	EndAt                *time.Time         `json:"end_at,omitempty"`
	Amount               int64              `json:"amount"` // в сентаво
	Currency             string             `json:"currency"`
	ProviderPreferenceID string             `json:"provider_preference_id,omitempty"`
	ProviderPaymentID    string             `json:"provider_payment_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// Activation описывает подтверждённую оплату, которую нужно применить атомарно:
// подписка pending→active, пользователь →active, новая запись в журнале платежей.
type Activation struct {
	UserID            string
	PlanType          PlanType
	ProviderPaymentID string
	Amount            int64
	Currency          string
	PaymentStatus     string
	PaymentMethod     string
	PaidAt            time.Time
	EndAt             time.Time
}
