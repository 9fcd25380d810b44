package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/period"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func trialUser(start time.Time) models.User {
	return models.User{
		ID:                 "u-1",
		TrialStartAt:       start,
		CreatedAt:          start,
		SubscriptionStatus: models.StatusTrial,
	}
}

func activeUser(end time.Time) models.User {
	u := trialUser(t0)
	u.SubscriptionStatus = models.StatusActive
	u.SubscriptionEndAt = &end
	return u
}

func TestEvaluate_TableTests(t *testing.T) {
	end := t0.Add(30 * 24 * time.Hour)

	tests := []struct {
		name       string
		user       models.User
		now        time.Time
		wantAccess Level
		wantMode   Mode
		wantDays   int
		wantHours  int
		transition bool
	}{
		{
			name:       "trial start",
			user:       trialUser(t0),
			now:        t0,
			wantAccess: Full, wantMode: ModeTrial, wantDays: 15, wantHours: 360,
		},
		{
			name:       "trial middle",
			user:       trialUser(t0),
			now:        t0.Add(14*24*time.Hour + 12*time.Hour),
			wantAccess: Full, wantMode: ModeTrial, wantDays: 1, wantHours: 12,
		},
		{
			name:       "trial one nanosecond before end",
			user:       trialUser(t0),
			now:        t0.Add(15*24*time.Hour - time.Nanosecond),
			wantAccess: Full, wantMode: ModeTrial, wantDays: 1, wantHours: 1,
		},
		{
			name:       "trial boundary instant",
			user:       trialUser(t0),
			now:        t0.Add(15 * 24 * time.Hour),
			wantAccess: Denied, wantMode: ModeExpiredTrial, transition: true,
		},
		{
			name:       "trial long past",
			user:       trialUser(t0),
			now:        t0.AddDate(1, 0, 0),
			wantAccess: Denied, wantMode: ModeExpiredTrial, transition: true,
		},
		{
			name:       "now before trial start",
			user:       trialUser(t0),
			now:        t0.Add(-48 * time.Hour),
			wantAccess: Full, wantMode: ModeTrial, wantDays: 15, wantHours: 360,
		},
		{
			name:       "paid active",
			user:       activeUser(end),
			now:        end.Add(-36 * time.Hour),
			wantAccess: Full, wantMode: ModePaid, wantDays: 2, wantHours: 36,
		},
		{
			name:       "paid boundary instant",
			user:       activeUser(end),
			now:        end,
			wantAccess: Denied, wantMode: ModeExpiredPaid, transition: true,
		},
		{
			name:       "paid after end",
			user:       activeUser(end),
			now:        end.Add(time.Hour),
			wantAccess: Denied, wantMode: ModeExpiredPaid, transition: true,
		},
		{
			name: "active without end date",
			user: func() models.User {
				u := trialUser(t0)
				u.SubscriptionStatus = models.StatusActive
				return u
			}(),
			now:        t0,
			wantAccess: Denied, wantMode: ModeExpiredPaid, transition: true,
		},
		{
			name: "expired",
			user: func() models.User {
				u := trialUser(t0)
				u.SubscriptionStatus = models.StatusExpired
				return u
			}(),
			now:        t0,
			wantAccess: Denied, wantMode: ModeExpired,
		},
		{
			name: "cancelled with future end",
			user: func() models.User {
				u := activeUser(end)
				u.SubscriptionStatus = models.StatusCancelled
				return u
			}(),
			now:        t0,
			wantAccess: Denied, wantMode: ModeCancelled,
		},
		{
			name: "unknown status",
			user: func() models.User {
				u := trialUser(t0)
				u.SubscriptionStatus = "vip"
				return u
			}(),
			now:        t0,
			wantAccess: Denied, wantMode: ModeExpired,
		},
		{
			name: "empty status",
			user: func() models.User {
				u := trialUser(t0)
				u.SubscriptionStatus = ""
				return u
			}(),
			now:        t0,
			wantAccess: Denied, wantMode: ModeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.user, tt.now, 15)

			assert.Equal(t, tt.wantAccess, d.Access)
			assert.Equal(t, tt.wantMode, d.Mode)
			assert.Equal(t, tt.wantDays, d.DaysLeft)
			assert.Equal(t, tt.wantHours, d.HoursLeft)
			assert.Equal(t, tt.transition, d.NeedsTransition)
			assert.Equal(t, tt.wantAccess == Full, d.Allowed())
		})
	}
}

func TestEvaluate_TrialBoundariesForAnyStart(t *testing.T) {
	starts := []time.Time{
		time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 59, 59, 999, time.UTC),
		time.Date(2024, 10, 27, 1, 30, 0, 0, time.FixedZone("ART", -3*3600)),
		t0,
	}
	for _, trialDays := range []int{1, 7, 15, 30} {
		for _, start := range starts {
			u := trialUser(start)

			atStart := Evaluate(u, start, trialDays)
			assert.Equal(t, Full, atStart.Access)
			assert.Equal(t, trialDays, atStart.DaysLeft)
			assert.Equal(t, trialDays*24, atStart.HoursLeft)

			atEnd := Evaluate(u, start.Add(time.Duration(trialDays)*24*time.Hour), trialDays)
			assert.Equal(t, Denied, atEnd.Access)
			assert.Equal(t, ModeExpiredTrial, atEnd.Mode)
		}
	}
}

func TestEvaluate_CountersNonIncreasing(t *testing.T) {
	users := []models.User{trialUser(t0), activeUser(t0.Add(40 * 24 * time.Hour))}

	for _, u := range users {
		prevDays, prevHours := Evaluate(u, t0, 15).DaysLeft, Evaluate(u, t0, 15).HoursLeft
		for now := t0; now.Before(t0.Add(45 * 24 * time.Hour)); now = now.Add(37 * time.Minute) {
			d := Evaluate(u, now, 15)
			require.LessOrEqual(t, d.DaysLeft, prevDays, "days at %s", now)
			require.LessOrEqual(t, d.HoursLeft, prevHours, "hours at %s", now)
			require.GreaterOrEqual(t, d.DaysLeft, 0)
			require.GreaterOrEqual(t, d.HoursLeft, 0)
			prevDays, prevHours = d.DaysLeft, d.HoursLeft
		}
	}
}

func TestEvaluate_MonthlyActivationOnMonthEnd(t *testing.T) {
	paidAt := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	end, ok := period.End(paidAt, models.PlanMonthly)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), end)

	u := activeUser(end)

	before := Evaluate(u, time.Date(2024, 2, 28, 23, 59, 59, 0, time.UTC), 15)
	assert.Equal(t, Full, before.Access)
	assert.Equal(t, ModePaid, before.Mode)
	assert.Equal(t, 1, before.DaysLeft)
	assert.Equal(t, 1, before.HoursLeft)

	at := Evaluate(u, end, 15)
	assert.Equal(t, Denied, at.Access)
	assert.Equal(t, ModeExpiredPaid, at.Mode)
}

func TestEvaluate_DefaultTrialDays(t *testing.T) {
	d := Evaluate(trialUser(t0), t0, 0)
	assert.Equal(t, DefaultTrialDays, d.DaysLeft)
	require.NotNil(t, d.TrialEndsAt)
	assert.Equal(t, t0.Add(15*24*time.Hour), *d.TrialEndsAt)
}

func TestEvaluate_DoesNotMutateUser(t *testing.T) {
	end := t0.Add(time.Hour)
	u := activeUser(end)
	d := Evaluate(u, t0, 15)

	require.NotNil(t, d.SubscriptionEndAt)
	*d.SubscriptionEndAt = d.SubscriptionEndAt.Add(time.Hour)
	assert.Equal(t, end, *u.SubscriptionEndAt)
}

func TestTrialCutoff(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// переход на летнее время 10 марта 2024 внутри пробного периода
	start := time.Date(2024, 3, 1, 7, 0, 0, 0, ny)
	end := TrialEnd(start, 15)

	assert.Equal(t, time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC), end.UTC())
	assert.False(t, start.After(TrialCutoff(end, 15)))
	assert.True(t, start.After(TrialCutoff(end.Add(-time.Millisecond), 15)))
	assert.Equal(t, TrialCutoff(end, DefaultTrialDays), TrialCutoff(end, 0))
}
