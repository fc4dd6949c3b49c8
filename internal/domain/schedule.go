package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Schedule statuses. APPROVED and REJECTED mirror the loan decision.
const (
	ScheduleStatusPending   = "PENDING"
	ScheduleStatusApproved  = "APPROVED"
	ScheduleStatusRejected  = "REJECTED"
	ScheduleStatusPaid      = "PAID"
	ScheduleStatusDefaulted = "DEFAULTED"
)

// RepaymentSchedule represents one installment of a loan
type RepaymentSchedule struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	LoanID      uuid.UUID       `json:"loan_id" db:"loan_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaymentDate time.Time       `json:"payment_date" db:"payment_date"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsPayable reports whether the installment can receive a repayment
func (s *RepaymentSchedule) IsPayable() bool {
	return s.Status == ScheduleStatusApproved || s.Status == ScheduleStatusDefaulted
}
