package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WeeklyTermDays  = 7
	MonthlyTermDays = 30
)

// CalculateInstallment splits an amount evenly across n parts.
// Formula: Amount / n, no rounding correction on the last part.
func CalculateInstallment(amount decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(int64(n)))
}

// TermDays returns the fixed cadence in days for a term type.
// Anything that is not MONTHLY is treated as weekly.
func TermDays(termType string) int {
	if termType == "MONTHLY" {
		return MonthlyTermDays
	}
	return WeeklyTermDays
}

// CalculateDueDate calculates the due date for a specific installment
// Installment 1 is due one cadence after start, installment 2 two cadences after, etc.
func CalculateDueDate(start time.Time, termDays int, installment int) time.Time {
	return start.AddDate(0, 0, installment*termDays)
}

// IsDateOverdue checks if a due date is strictly before now
func IsDateOverdue(dueDate, now time.Time) bool {
	return dueDate.Before(now)
}
