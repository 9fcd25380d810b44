package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	webhook "github.com/magabrotheeeer/drivemetrics/internal/services/webhook"
)

type ProcessorMock struct {
	mock.Mock
}

func (m *ProcessorMock) HandleNotification(ctx context.Context, n webhook.Notification) webhook.Outcome {
	return m.Called(ctx, n).Get(0).(webhook.Outcome)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		secret      string
		target      string
		body        string
		headers     map[string]string
		wantNotif   *webhook.Notification
		outcome     webhook.Outcome
		wantOutcome string
	}{
		{
			name:        "json body with string id",
			target:      "/payments/webhook",
			body:        `{"type":"payment","action":"payment.updated","data":{"id":"123"}}`,
			wantNotif:   &webhook.Notification{Type: "payment", Action: "payment.updated", PaymentID: "123"},
			outcome:     webhook.OutcomeActivated,
			wantOutcome: "activated",
		},
		{
			name:        "json body with numeric id",
			target:      "/payments/webhook",
			body:        `{"type":"payment","data":{"id":987654321}}`,
			wantNotif:   &webhook.Notification{Type: "payment", PaymentID: "987654321"},
			outcome:     webhook.OutcomeWaiting,
			wantOutcome: "waiting",
		},
		{
			name:        "ipn query parameters",
			target:      "/payments/webhook?topic=payment&id=555",
			wantNotif:   &webhook.Notification{Topic: "payment", PaymentID: "555"},
			outcome:     webhook.OutcomeDuplicate,
			wantOutcome: "duplicate",
		},
		{
			name:        "query type and data.id",
			target:      "/payments/webhook?type=payment&data.id=777",
			body:        `not json`,
			wantNotif:   &webhook.Notification{Type: "payment", PaymentID: "777"},
			outcome:     webhook.OutcomeFailed,
			wantOutcome: "failed",
		},
		{
			name:        "merchant order is passed through",
			target:      "/payments/webhook?topic=merchant_order&id=1",
			wantNotif:   &webhook.Notification{Topic: "merchant_order", PaymentID: "1"},
			outcome:     webhook.OutcomeIgnored,
			wantOutcome: "ignored",
		},
		{
			name:   "valid signature",
			secret: "s3cret",
			target: "/payments/webhook?data.id=ABC",
			body:   `{"type":"payment","data":{"id":"ABC"}}`,
			headers: map[string]string{
				"x-signature":  "ts=1700000000,v1=" + sign("s3cret", "id:abc;request-id:req-1;ts:1700000000;"),
				"x-request-id": "req-1",
			},
			wantNotif:   &webhook.Notification{Type: "payment", PaymentID: "ABC"},
			outcome:     webhook.OutcomeActivated,
			wantOutcome: "activated",
		},
		{
			name:   "bad signature is acknowledged but not processed",
			secret: "s3cret",
			target: "/payments/webhook",
			body:   `{"type":"payment","data":{"id":"123"}}`,
			headers: map[string]string{
				"x-signature":  "ts=1700000000,v1=deadbeef",
				"x-request-id": "req-1",
			},
			wantOutcome: "invalid",
		},
		{
			name:   "replayed signature is acknowledged but not processed",
			secret: "s3cret",
			target: "/payments/webhook?data.id=ABC",
			body:   `{"type":"payment","data":{"id":"ABC"}}`,
			headers: map[string]string{
				"x-signature":  "ts=1699990000,v1=" + sign("s3cret", "id:abc;request-id:req-1;ts:1699990000;"),
				"x-request-id": "req-1",
			},
			wantOutcome: "invalid",
		},
		{
			name:        "missing signature",
			secret:      "s3cret",
			target:      "/payments/webhook",
			body:        `{"type":"payment","data":{"id":"123"}}`,
			wantOutcome: "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(ProcessorMock)
			if tt.wantNotif != nil {
				p.On("HandleNotification", mock.Anything, *tt.wantNotif).Return(tt.outcome).Once()
			}

			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			New(newNoopLogger(), p, tt.secret, clock.Fixed(time.Unix(1700000060, 0))).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			var got struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantOutcome, got.Data["outcome"])
			assert.Equal(t, true, got.Data["received"])
			p.AssertExpectations(t)
		})
	}
}

func TestFlexibleID(t *testing.T) {
	tests := []struct {
		raw  string
		want flexibleID
	}{
		{raw: `"123"`, want: "123"},
		{raw: `123456789012`, want: "123456789012"},
		{raw: `null`, want: ""},
	}
	for _, tt := range tests {
		var f flexibleID
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &f))
		assert.Equal(t, tt.want, f)
	}

	var f flexibleID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &f))
}
