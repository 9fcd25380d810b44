package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ExpireTrials(ctx context.Context, now time.Time, trialDays int) ([]models.ExpiredUser, error) {
	args := m.Called(ctx, now, trialDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ExpiredUser), args.Error(1)
}

func (m *RepoMock) ExpireSubscriptions(ctx context.Context, now time.Time) ([]models.ExpiredUser, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ExpiredUser), args.Error(1)
}

func (m *RepoMock) StatusStats(ctx context.Context) (models.StatusStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StatusStats), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) InvalidateUsers(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var sweepAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestSweeperService_Sweep(t *testing.T) {
	trial := models.ExpiredUser{ID: "u-1", Email: "a@example.com", From: models.StatusTrial, Reason: "trial_ended"}
	paid := models.ExpiredUser{ID: "u-2", Email: "b@example.com", From: models.StatusActive, Reason: "subscription_ended"}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, p *PublisherMock, c *CacheMock)
		want       Result
		wantErr    bool
	}{
		{
			name: "expires trials and subscriptions",
			setupMocks: func(r *RepoMock, p *PublisherMock, c *CacheMock) {
				r.On("ExpireTrials", mock.Anything, sweepAt, 15).Return([]models.ExpiredUser{trial}, nil).Once()
				r.On("ExpireSubscriptions", mock.Anything, sweepAt).Return([]models.ExpiredUser{paid}, nil).Once()
				c.On("InvalidateUsers", mock.Anything, []string{"u-1", "u-2"}).Return(nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.ExpiredRoutingKey, trial).Return(nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.ExpiredRoutingKey, paid).Return(nil).Once()
				r.On("StatusStats", mock.Anything).Return(models.StatusStats{Expired: 2, Total: 2}, nil).Once()
			},
			want: Result{TrialsExpired: 1, SubscriptionsExpired: 1},
		},
		{
			name: "second run is a no-op",
			setupMocks: func(r *RepoMock, _ *PublisherMock, _ *CacheMock) {
				r.On("ExpireTrials", mock.Anything, sweepAt, 15).Return([]models.ExpiredUser{}, nil).Once()
				r.On("ExpireSubscriptions", mock.Anything, sweepAt).Return([]models.ExpiredUser{}, nil).Once()
				r.On("StatusStats", mock.Anything).Return(models.StatusStats{}, nil).Once()
			},
			want: Result{},
		},
		{
			name: "publish failure does not fail the sweep",
			setupMocks: func(r *RepoMock, p *PublisherMock, c *CacheMock) {
				r.On("ExpireTrials", mock.Anything, sweepAt, 15).Return([]models.ExpiredUser{trial}, nil).Once()
				r.On("ExpireSubscriptions", mock.Anything, sweepAt).Return(nil, nil).Once()
				c.On("InvalidateUsers", mock.Anything, []string{"u-1"}).Return(errors.New("redis down")).Once()
				p.On("Publish", mock.Anything, rabbitmq.ExpiredRoutingKey, trial).Return(errors.New("channel closed")).Once()
				r.On("StatusStats", mock.Anything).Return(models.StatusStats{}, errors.New("timeout")).Once()
			},
			want: Result{TrialsExpired: 1},
		},
		{
			name: "trial failure still expires subscriptions",
			setupMocks: func(r *RepoMock, p *PublisherMock, c *CacheMock) {
				r.On("ExpireTrials", mock.Anything, sweepAt, 15).Return(nil, errors.New("db down")).Once()
				r.On("ExpireSubscriptions", mock.Anything, sweepAt).Return([]models.ExpiredUser{paid}, nil).Once()
				c.On("InvalidateUsers", mock.Anything, []string{"u-2"}).Return(nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.ExpiredRoutingKey, paid).Return(nil).Once()
				r.On("StatusStats", mock.Anything).Return(models.StatusStats{}, nil).Once()
			},
			want:    Result{SubscriptionsExpired: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, p, c := new(RepoMock), new(PublisherMock), new(CacheMock)
			tt.setupMocks(r, p, c)
			s := NewSweeperService(r, p, c, nil, 15, newNoopLogger())

			got, err := s.Sweep(context.Background(), sweepAt)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			r.AssertExpectations(t)
			p.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestSweeperService_WithoutBroker(t *testing.T) {
	r := new(RepoMock)
	r.On("ExpireTrials", mock.Anything, sweepAt, 15).
		Return([]models.ExpiredUser{{ID: "u-1"}}, nil).Once()
	r.On("ExpireSubscriptions", mock.Anything, sweepAt).Return(nil, nil).Once()
	r.On("StatusStats", mock.Anything).Return(models.StatusStats{}, nil).Once()

	s := NewSweeperService(r, nil, nil, nil, 0, newNoopLogger())
	got, err := s.Sweep(context.Background(), sweepAt)

	require.NoError(t, err)
	assert.Equal(t, 1, got.TrialsExpired)
	r.AssertExpectations(t)
}
