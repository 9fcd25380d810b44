package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

func TestAddMonths_TableTests(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{
			name: "ordinary day",
			from: time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC),
			n:    1,
			want: time.Date(2024, 4, 10, 12, 30, 0, 0, time.UTC),
		},
		{
			name: "end of january in leap year",
			from: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			n:    1,
			want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "end of january in common year",
			from: time.Date(2023, 1, 31, 8, 0, 0, 0, time.UTC),
			n:    1,
			want: time.Date(2023, 2, 28, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "31st into 30-day month",
			from: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
			n:    1,
			want: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december rolls into next year",
			from: time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
			n:    1,
			want: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "twelve months",
			from: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			n:    12,
			want: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "negative months cross year",
			from: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			n:    -2,
			want: time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "zero months",
			from: time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
			n:    0,
			want: time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.from, tt.n)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestAddYears_LeapDay(t *testing.T) {
	got := AddYears(time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC), got)
}

func TestEnd(t *testing.T) {
	paidAt := time.Date(2024, 1, 31, 15, 0, 0, 0, time.UTC)

	end, ok := End(paidAt, models.PlanMonthly)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 15, 0, 0, 0, time.UTC), end)

	end, ok = End(paidAt, models.PlanAnnual)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 31, 15, 0, 0, 0, time.UTC), end)

	_, ok = End(paidAt, models.PlanType("weekly"))
	assert.False(t, ok)
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(time.February, 2024))
	assert.Equal(t, 28, DaysIn(time.February, 2100))
	assert.Equal(t, 31, DaysIn(time.December, 2024))
	assert.Equal(t, 30, DaysIn(time.April, 2024))
}
