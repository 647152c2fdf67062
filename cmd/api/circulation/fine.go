package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is the amount owed for a copy due on dueDate and still out (or
// returned) on asOf. Whole calendar days in UTC are charged, partial days are not.
func Fine(dueDate, asOf time.Time, ratePerDay decimal.Decimal) decimal.Decimal {
	days := DaysBetween(dueDate, asOf)
	if days <= 0 {
		return decimal.Zero.Round(2)
	}
	return ratePerDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
}

// DaysBetween counts calendar days from the UTC date of from to the UTC date of to.
func DaysBetween(from, to time.Time) int {
	return int(startOfDay(to).Sub(startOfDay(from)).Hours() / 24)
}

// OverdueCutoff is the instant before which a due date is overdue as of now.
func OverdueCutoff(now time.Time) time.Time {
	return startOfDay(now)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
