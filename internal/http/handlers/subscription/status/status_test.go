package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	subscription "github.com/magabrotheeeer/drivemetrics/internal/services/subscription"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Status(ctx context.Context, userID string) (access.Decision, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(access.Decision), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestStatusHandler_ServeHTTP(t *testing.T) {
	trialEnd := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		userID    string
		setupMock func(s *ServiceMock)
		wantCode  int
		wantMode  string
	}{
		{
			name:   "trial",
			userID: "u-1",
			setupMock: func(s *ServiceMock) {
				s.On("Status", mock.Anything, "u-1").Return(access.Decision{
					Access: access.Full, Mode: access.ModeTrial, DaysLeft: 6, HoursLeft: 144, TrialEndsAt: &trialEnd,
				}, nil).Once()
			},
			wantCode: http.StatusOK,
			wantMode: "trial",
		},
		{
			name:   "expired is still 200",
			userID: "u-1",
			setupMock: func(s *ServiceMock) {
				s.On("Status", mock.Anything, "u-1").
					Return(access.Decision{Access: access.Denied, Mode: access.ModeExpired}, nil).Once()
			},
			wantCode: http.StatusOK,
			wantMode: "expired",
		},
		{
			name:      "no user",
			setupMock: func(_ *ServiceMock) {},
			wantCode:  http.StatusUnauthorized,
		},
		{
			name:   "unknown user",
			userID: "u-404",
			setupMock: func(s *ServiceMock) {
				s.On("Status", mock.Anything, "u-404").
					Return(access.Decision{}, fmt.Errorf("op: %w", subscription.ErrUserNotFound)).Once()
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:   "failure",
			userID: "u-1",
			setupMock: func(s *ServiceMock) {
				s.On("Status", mock.Anything, "u-1").Return(access.Decision{}, errors.New("db down")).Once()
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(ServiceMock)
			tt.setupMock(s)

			req := httptest.NewRequest(http.MethodGet, "/subscription/status", nil)
			if tt.userID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserID, tt.userID))
			}
			rec := httptest.NewRecorder()

			New(newNoopLogger(), s).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantMode != "" {
				var got map[string]any
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
				data := got["data"].(map[string]any)
				assert.Equal(t, tt.wantMode, data["mode"])
				assert.Contains(t, data, "daysLeft")
				assert.Contains(t, data, "hoursLeft")
			}
			s.AssertExpectations(t)
		})
	}
}
