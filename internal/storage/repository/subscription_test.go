package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/period"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

func activation(userID string, plan models.PlanType, paymentID string, paidAt time.Time) models.Activation {
	end, _ := period.End(paidAt, plan)
	return models.Activation{
		UserID:            userID,
		PlanType:          plan,
		ProviderPaymentID: paymentID,
		Amount:            2999900,
		Currency:          "ARS",
		PaymentStatus:     "approved",
		PaymentMethod:     "credit_card",
		PaidAt:            paidAt,
		EndAt:             end,
	}
}

func TestStorage_CreatePendingSubscription_Idempotent(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	verify := NewTestVerification(storage)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "p@example.com", time.Now().UTC())

	first, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanMonthly, 299900, "ARS", "pref-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPending, first.Status)

	second, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanMonthly, 299900, "ARS", "pref-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "pref-2", second.ProviderPreferenceID)

	annual, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanAnnual, 2999900, "ARS", "pref-3")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, annual.ID)

	assert.Equal(t, 2, verify.SubscriptionCount(t, u.ID, models.SubscriptionPending))

	latest, err := storage.LatestPendingSubscription(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, annual.ID, latest.ID)
}

func TestStorage_LatestPendingSubscription_NotFound(t *testing.T) {
	storage := setupTestDatabase(t)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "none@example.com", time.Now().UTC())

	_, err := storage.LatestPendingSubscription(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ActivateSubscription(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	verify := NewTestVerification(storage)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "a@example.com", time.Now().UTC())

	pending, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanAnnual, 2999900, "ARS", "pref-1")
	require.NoError(t, err)

	paidAt := time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
	sub, err := storage.ActivateSubscription(ctx, activation(u.ID, models.PlanAnnual, "mp-1", paidAt))
	require.NoError(t, err)
	assert.Equal(t, pending.ID, sub.ID)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.EndAt)
	assert.True(t, time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC).Equal(*sub.EndAt))

	user, err := storage.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, user.SubscriptionStatus)
	require.NotNil(t, user.SubscriptionEndAt)
	assert.True(t, sub.EndAt.Equal(*user.SubscriptionEndAt))
	require.NotNil(t, user.LastPaymentAt)
	assert.True(t, paidAt.Equal(*user.LastPaymentAt))
	assert.True(t, u.TrialStartAt.Equal(user.TrialStartAt))

	// повторная доставка того же платежа
	_, err = storage.ActivateSubscription(ctx, activation(u.ID, models.PlanAnnual, "mp-1", paidAt.Add(time.Second)))
	assert.ErrorIs(t, err, ErrPaymentExists)
	assert.Equal(t, 1, verify.PaymentCount(t, u.ID))

	exists, err := storage.PaymentExists(ctx, "mp-1")
	require.NoError(t, err)
	assert.True(t, exists)

	payments, err := storage.ListPayments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.NotNil(t, payments[0].PlanType)
	assert.Equal(t, models.PlanAnnual, *payments[0].PlanType)
	assert.Equal(t, int64(2999900), payments[0].Amount)
}

func TestStorage_ActivateSubscription_WithoutPendingAndRenewal(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	verify := NewTestVerification(storage)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "r@example.com", time.Now().UTC())
	paidAt := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	first, err := storage.ActivateSubscription(ctx, activation(u.ID, models.PlanMonthly, "mp-1", paidAt))
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC).Equal(*first.EndAt))

	second, err := storage.ActivateSubscription(ctx, activation(u.ID, models.PlanMonthly, "mp-2", paidAt.AddDate(0, 0, 28)))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	assert.Equal(t, 1, verify.SubscriptionCount(t, u.ID, models.SubscriptionActive))
	assert.Equal(t, 1, verify.SubscriptionCount(t, u.ID, models.SubscriptionExpired))
	assert.Equal(t, 2, verify.PaymentCount(t, u.ID))
}

func TestStorage_ActivateSubscription_UnknownUser(t *testing.T) {
	storage := setupTestDatabase(t)

	_, err := storage.ActivateSubscription(context.Background(),
		activation(uuid.New().String(), models.PlanMonthly, "mp-x", time.Now().UTC()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ActivateSubscription_ConcurrentDeliveries(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	verify := NewTestVerification(storage)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "c@example.com", time.Now().UTC())
	_, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanMonthly, 299900, "ARS", "pref")
	require.NoError(t, err)

	const deliveries = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	paidAt := time.Now().UTC()
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.ActivateSubscription(ctx, activation(u.ID, models.PlanMonthly, "mp-race", paidAt))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrPaymentExists):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, deliveries-1, dupes)
	assert.Equal(t, 1, verify.PaymentCount(t, u.ID))
	assert.Equal(t, 1, verify.SubscriptionCount(t, u.ID, models.SubscriptionActive))
}

func TestStorage_CancelPendingSubscription(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	verify := NewTestVerification(storage)
	u := NewTestDataFactory(storage).CreateTrialUser(t, "x@example.com", time.Now().UTC())
	_, err := storage.CreatePendingSubscription(ctx, u.ID, models.PlanMonthly, 299900, "ARS", "pref")
	require.NoError(t, err)

	changed, err := storage.CancelPendingSubscription(ctx, u.ID, models.PlanAnnual, "mp-9")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = storage.CancelPendingSubscription(ctx, u.ID, models.PlanMonthly, "mp-9")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, 1, verify.SubscriptionCount(t, u.ID, models.SubscriptionCancelled))
	assert.Equal(t, models.StatusTrial, verify.UserStatus(t, u.ID))

	subs, err := storage.ListSubscriptions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "mp-9", subs[0].ProviderPaymentID)

	// повторная доставка того же отказа не трогает новую оплату
	_, err = storage.CreatePendingSubscription(ctx, u.ID, models.PlanMonthly, 299900, "ARS", "pref-2")
	require.NoError(t, err)
	changed, err = storage.CancelPendingSubscription(ctx, u.ID, models.PlanMonthly, "mp-9")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, verify.SubscriptionCount(t, u.ID, models.SubscriptionPending))
}

func TestStorage_WithTx_RollbackOnError(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	u := NewTestDataFactory(storage).CreateTrialUser(t, "tx@example.com", time.Now().UTC())
	boom := errors.New("boom")

	err := storage.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET full_name = 'changed' WHERE id = $1`, u.ID)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := storage.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Driver", got.FullName)

	assert.Panics(t, func() {
		_ = storage.WithTx(ctx, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `UPDATE users SET full_name = 'panic' WHERE id = $1`, u.ID)
			panic("boom")
		})
	})
	got, err = storage.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Driver", got.FullName)
}
