// Package period считает календарные сроки подписок.
//
// В отличие от time.AddDate, который нормализует 31 января + 1 месяц в 2 марта,
// здесь день прибавленного месяца прижимается к последнему дню целевого месяца:
// 31.01.2024 + 1 месяц = 29.02.2024.
package period

import (
	"time"

	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// AddMonths прибавляет n календарных месяцев с прижатием дня к концу месяца.
// Время суток и часовой пояс сохраняются.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	total := int(month) - 1 + n
	targetYear := year + total/12
	targetMonth := total % 12
	if targetMonth < 0 {
		targetMonth += 12
		targetYear--
	}

	last := DaysIn(time.Month(targetMonth+1), targetYear)
	if day > last {
		day = last
	}
	return time.Date(targetYear, time.Month(targetMonth+1), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// AddYears прибавляет n лет; 29 февраля в невисокосный год становится 28 февраля.
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

// End возвращает момент окончания подписки по тарифу, оплаченной в paidAt.
// Для неизвестного тарифа возвращает false.
func End(paidAt time.Time, plan models.PlanType) (time.Time, bool) {
	switch plan {
	case models.PlanMonthly:
		return AddMonths(paidAt, 1), true
	case models.PlanAnnual:
		return AddYears(paidAt, 1), true
	}
	return time.Time{}, false
}

// DaysIn возвращает количество дней в месяце.
func DaysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
