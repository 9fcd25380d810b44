package models

import "time"

// Payment — строка журнала платежей. Журнал только дополняется,
// ProviderPaymentID уникален и служит ключом идемпотентности вебхука.
type Payment struct {
	ID                int64     `json:"id"`
	UserID            string    `json:"user_id"`
	SubscriptionID    *int64    `json:"subscription_id,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	PaymentMethod     string    `json:"payment_method,omitempty"`
	PaidAt            time.Time `json:"paid_at"`
	PlanType          *PlanType `json:"plan_type,omitempty"`
}
