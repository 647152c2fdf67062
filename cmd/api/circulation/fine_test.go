package circulation_test

import (
	"testing"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/matryer/is"
	"github.com/shopspring/decimal"
)

func TestFine(t *testing.T) {
	day := func(y int, m time.Month, d, h int) time.Time {
		return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
	}
	one := decimal.NewFromInt(1)

	tt := []struct {
		name string
		due  time.Time
		asOf time.Time
		rate decimal.Decimal
		fine string
	}{
		{"four days late at one per day", day(2024, 1, 1, 12), day(2024, 1, 5, 9), one, "4.00"},
		{"returned on the due date", day(2024, 1, 1, 8), day(2024, 1, 1, 23), one, "0.00"},
		{"returned before the due date", day(2024, 1, 10, 8), day(2024, 1, 3, 8), one, "0.00"},
		{"calendar days count, not elapsed hours", day(2024, 1, 1, 23), day(2024, 1, 2, 1), one, "1.00"},
		{"fractional rate", day(2024, 2, 27, 0), day(2024, 3, 1, 0), decimal.RequireFromString("0.5"), "1.50"},
		{"rate rounded to cents", day(2024, 1, 1, 0), day(2024, 1, 4, 0), decimal.RequireFromString("0.333"), "1.00"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			fine := circulation.Fine(tc.due, tc.asOf, tc.rate)
			is.Equal(fine.StringFixed(2), tc.fine)
			is.True(!fine.IsNegative())
		})
	}
}

func TestFineUsesUTCDates(t *testing.T) {
	is := is.New(t)

	// 23:30 in UTC-5 on Jan 1 is already Jan 2 in UTC.
	est := time.FixedZone("EST", -5*3600)
	due := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	asOf := time.Date(2024, 1, 1, 23, 30, 0, 0, est)

	is.Equal(circulation.DaysBetween(due, asOf), 1)
	is.Equal(circulation.Fine(due, asOf, decimal.NewFromInt(2)).StringFixed(2), "2.00")
}

func TestPresent(t *testing.T) {
	rate := decimal.NewFromInt(1)
	borrowed := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	record := circulation.BorrowRecord{
		BorrowDate: borrowed,
		DueDate:    borrowed.AddDate(0, 0, 14),
		Status:     circulation.StatusBorrowed,
		FineAmount: decimal.Zero,
	}

	t.Run("active record before its due date stays borrowed", func(t *testing.T) {
		is := is.New(t)

		p := record.Present(borrowed.AddDate(0, 0, 14), rate)
		is.Equal(p.Status, circulation.StatusBorrowed)
		is.True(p.FineAmount.IsZero())
		is.Equal(p.DaysOverdue(borrowed.AddDate(0, 0, 14)), 0)
		is.Equal(p.OverdueDays, 0)
	})

	t.Run("active record past its due date is overdue with an advisory fine", func(t *testing.T) {
		is := is.New(t)

		asOf := borrowed.AddDate(0, 0, 20)
		p := record.Present(asOf, rate)
		is.Equal(p.Status, circulation.StatusOverdue)
		is.Equal(p.FineAmount.StringFixed(2), "6.00")
		is.True(p.IsOverdue(asOf))
		is.Equal(p.DaysOverdue(asOf), 6)
		is.Equal(p.OverdueDays, 6)
	})

	t.Run("returned record keeps its stored fine", func(t *testing.T) {
		is := is.New(t)

		returned := record
		returnedAt := borrowed.AddDate(0, 0, 16)
		returned.ReturnDate = &returnedAt
		returned.Status = circulation.StatusReturned
		returned.FineAmount = decimal.NewFromInt(2)

		p := returned.Present(borrowed.AddDate(0, 0, 60), rate)
		is.Equal(p.Status, circulation.StatusReturned)
		is.Equal(p.FineAmount.StringFixed(2), "2.00")
		is.True(!p.IsOverdue(borrowed.AddDate(0, 0, 60)))
		is.Equal(p.OverdueDays, 0)
	})

	t.Run("overdue days are fixed at presentation time", func(t *testing.T) {
		is := is.New(t)

		// Presented one second before midnight of the first overdue day.
		asOf := time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)
		p := record.Present(asOf, rate)
		is.Equal(p.Status, circulation.StatusBorrowed)
		is.Equal(p.OverdueDays, 0)

		// A later clock does not turn the presented record overdue.
		is.True(p.IsOverdue(asOf.Add(2 * time.Second)))
		is.Equal(p.Status, circulation.StatusBorrowed)
		is.Equal(p.OverdueDays, 0)
	})
}
