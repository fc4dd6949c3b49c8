package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// GenerateSchedule builds the installments of a new loan: totalTerms equal
// parts of totalAmount, the first due one cadence after now. Rounding drift
// on the last part is left as is.
func GenerateSchedule(loanID uuid.UUID, totalAmount decimal.Decimal, totalTerms int, termType string, now time.Time) []*domain.RepaymentSchedule {
	installment := utils.CalculateInstallment(totalAmount, totalTerms)
	termDays := utils.TermDays(termType)

	schedules := make([]*domain.RepaymentSchedule, 0, totalTerms)
	for i := 1; i <= totalTerms; i++ {
		schedules = append(schedules, &domain.RepaymentSchedule{
			ID:          uuid.New(),
			LoanID:      loanID,
			TotalAmount: installment,
			PaymentDate: utils.CalculateDueDate(now, termDays, i),
			Status:      domain.ScheduleStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return schedules
}
