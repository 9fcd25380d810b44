package paymentprovider

import (
	"math"
	"time"
)

// Статусы платежа MercadoPago, на которые реагирует сервис.
const (
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusPending    = "pending"
	StatusInProcess  = "in_process"
	StatusRefunded   = "refunded"
	StatusChargeBack = "charged_back"
)

// PreferenceItem позиция в платёжной преференции.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs адреса возврата пользователя после оплаты.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Payer плательщик.
type Payer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// PreferenceRequest тело POST /checkout/preferences.
type PreferenceRequest struct {
	Items               []PreferenceItem  `json:"items"`
	Payer               Payer             `json:"payer"`
	BackURLs            BackURLs          `json:"back_urls"`
	AutoReturn          string            `json:"auto_return,omitempty"`
	ExternalReference   string            `json:"external_reference"`
	NotificationURL     string            `json:"notification_url,omitempty"`
	StatementDescriptor string            `json:"statement_descriptor,omitempty"`
	Expires             bool              `json:"expires"`
	ExpirationDateFrom  *time.Time        `json:"expiration_date_from,omitempty"`
	ExpirationDateTo    *time.Time        `json:"expiration_date_to,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Preference созданная преференция.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment платёж в том виде, в каком его отдаёт GET /v1/payments/{id}.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	ExternalReference string         `json:"external_reference"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id"`
	PaymentMethodID   string         `json:"payment_method_id"`
	PaymentTypeID     string         `json:"payment_type_id"`
	DateCreated       *time.Time     `json:"date_created"`
	DateApproved      *time.Time     `json:"date_approved"`
	Metadata          map[string]any `json:"metadata"`
}

// AmountMinor сумма платежа в сентаво.
func (p Payment) AmountMinor() int64 {
	return int64(math.Round(p.TransactionAmount * 100))
}

// PaidAt момент оплаты: date_approved, иначе date_created, иначе fallback.
func (p Payment) PaidAt(fallback time.Time) time.Time {
	switch {
	case p.DateApproved != nil && !p.DateApproved.IsZero():
		return p.DateApproved.UTC()
	case p.DateCreated != nil && !p.DateCreated.IsZero():
		return p.DateCreated.UTC()
	default:
		return fallback
	}
}

// MetadataString достаёт строковое значение из metadata.
func (p Payment) MetadataString(key string) string {
	v, ok := p.Metadata[key].(string)
	if !ok {
		return ""
	}
	return v
}

// apiError тело ошибки MercadoPago.
type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}
