package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) History(ctx context.Context, userID string) ([]models.Payment, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func withUser(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middlewarectx.UserID, "u-1"))
}

func TestHistoryHandler_ServeHTTP(t *testing.T) {
	plan := models.PlanMonthly
	payments := []models.Payment{{
		ID:                1,
		UserID:            "u-1",
		ProviderPaymentID: "123",
		Amount:            299900,
		Currency:          "ARS",
		Status:            "approved",
		PaidAt:            time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		PlanType:          &plan,
	}}

	t.Run("lists payments", func(t *testing.T) {
		s := new(ServiceMock)
		s.On("History", mock.Anything, "u-1").Return(payments, nil).Once()

		rec := httptest.NewRecorder()
		New(newNoopLogger(), s).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/payments/history", nil)))

		assert.Equal(t, http.StatusOK, rec.Code)
		var got struct {
			Data []models.Payment `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, payments, got.Data)
		s.AssertExpectations(t)
	})

	t.Run("empty history is an empty list", func(t *testing.T) {
		s := new(ServiceMock)
		s.On("History", mock.Anything, "u-1").Return(nil, nil).Once()

		rec := httptest.NewRecorder()
		New(newNoopLogger(), s).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/payments/history", nil)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"OK","data":[]}`, rec.Body.String())
	})

	t.Run("failure", func(t *testing.T) {
		s := new(ServiceMock)
		s.On("History", mock.Anything, "u-1").Return(nil, errors.New("db down")).Once()

		rec := httptest.NewRecorder()
		New(newNoopLogger(), s).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/payments/history", nil)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("no user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		New(newNoopLogger(), new(ServiceMock)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/history", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
