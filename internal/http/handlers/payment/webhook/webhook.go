// Package webhook HTTP-обработчик уведомлений MercadoPago.
//
// Уведомления приходят в двух форматах: JSON-тело {type, action, data.id}
// или параметры строки запроса topic/id (IPN). Ответ всегда 200, чтобы
// провайдер не повторял доставку. Повторная доставка всё равно безопасна.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/paymentprovider"
	webhook "github.com/magabrotheeeer/drivemetrics/internal/services/webhook"
)

const maxBodySize = 1 << 20

// Processor применяет уведомление.
type Processor interface {
	HandleNotification(ctx context.Context, n webhook.Notification) webhook.Outcome
}

// Payload тело уведомления.
type Payload struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID принимает идентификатор и строкой, и числом.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// Handler обрабатывает POST /payments/webhook.
type Handler struct {
	log       *slog.Logger
	processor Processor
	secret    string
	clock     clock.Clock
}

// New создает Handler. При пустом secret подпись не проверяется.
func New(log *slog.Logger, processor Processor, secret string, clk clock.Clock) *Handler {
	return &Handler{
		log:       log,
		processor: processor,
		secret:    secret,
		clock:     clk,
	}
}

// ServeHTTP godoc
// @Summary Уведомление MercadoPago
// @Description Принимает уведомление о платеже, запрашивает платёж у провайдера и применяет его. Всегда отвечает 200.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param topic query string false "Тип уведомления (IPN)"
// @Param id query string false "Идентификатор платежа (IPN)"
// @Success 200 {object} response.Response
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Warn("failed to read webhook body", sl.Err(err))
	}

	var payload Payload
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			log.Warn("webhook body is not valid json", sl.Err(err))
		}
	}

	n := notificationFrom(payload, r)

	if h.secret != "" {
		dataID := r.URL.Query().Get("data.id")
		if dataID == "" {
			dataID = n.PaymentID
		}
		err := paymentprovider.VerifySignature(h.secret,
			r.Header.Get("x-signature"), r.Header.Get("x-request-id"), dataID, h.clock.Now())
		if err != nil {
			log.Warn("webhook signature rejected", sl.Err(err), slog.String("payment_id", n.PaymentID))
			h.ack(w, r, webhook.OutcomeInvalid)
			return
		}
	}

	outcome := h.processor.HandleNotification(r.Context(), n)
	log.Info("webhook processed",
		slog.String("payment_id", n.PaymentID),
		slog.String("outcome", string(outcome)),
	)
	h.ack(w, r, outcome)
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request, outcome webhook.Outcome) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"received": true,
		"outcome":  outcome,
	}))
}

func notificationFrom(p Payload, r *http.Request) webhook.Notification {
	q := r.URL.Query()
	n := webhook.Notification{
		Type:      p.Type,
		Topic:     q.Get("topic"),
		Action:    p.Action,
		PaymentID: strings.TrimSpace(string(p.Data.ID)),
	}
	if n.Type == "" {
		n.Type = q.Get("type")
	}
	if n.PaymentID == "" {
		n.PaymentID = q.Get("data.id")
	}
	if n.PaymentID == "" {
		n.PaymentID = q.Get("id")
	}
	return n
}
