// Package paymentprovider клиент REST API MercadoPago: создание платёжных
// преференций (Checkout Pro) и получение платежей по идентификатору.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/drivemetrics/internal/config"
)

// ErrPaymentNotFound провайдер не знает такого платежа.
var ErrPaymentNotFound = errors.New("payment not found")

// StatusError неуспешный ответ API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mercadopago: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client клиент MercadoPago.
type Client struct {
	accessToken string
	apiURL      string
	httpClient  *http.Client
}

// NewClient создаёт клиент по настройкам.
func NewClient(cfg config.MercadoPago) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		accessToken: cfg.AccessToken,
		apiURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreatePreference создаёт платёжную преференцию.
func (c *Client) CreatePreference(ctx context.Context, pr PreferenceRequest) (*Preference, error) {
	const op = "paymentprovider.CreatePreference"

	req, err := c.newRequest(ctx, http.MethodPost, "/checkout/preferences", pr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	var pref Preference
	if err := c.do(req, &pref); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pref.ID == "" {
		return nil, fmt.Errorf("%s: empty preference id in response", op)
	}
	return &pref, nil
}

// GetPayment получает актуальное состояние платежа.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	const op = "paymentprovider.GetPayment"

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var p Payment
	if err := c.do(req, &p); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}
