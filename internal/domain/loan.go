package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LoanStatusPending  = "PENDING"
	LoanStatusApproved = "APPROVED"
	LoanStatusRejected = "REJECTED"
	LoanStatusPaid     = "PAID"
)

const (
	TermTypeWeekly  = "WEEKLY"
	TermTypeMonthly = "MONTHLY"
)

// Loan represents a loan entity
type Loan struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OwnerID         uuid.UUID       `json:"owner_id" db:"owner_id"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	TotalTerms      int             `json:"total_terms" db:"total_terms"`
	TermType        string          `json:"term_type" db:"term_type"`
	Status          string          `json:"status" db:"status"`
	LastPaymentDate *time.Time      `json:"last_payment_date" db:"last_payment_date"`
	ClosingDate     *time.Time      `json:"closing_date" db:"closing_date"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	// Populated by detail projections only.
	Schedules           []*RepaymentSchedule `json:"schedules,omitempty" db:"-"`
	LoanActivities      []*LoanActivity      `json:"loan_activities,omitempty" db:"-"`
	RepaymentActivities []*RepaymentActivity `json:"repayment_activities,omitempty" db:"-"`
}

// StatusRank orders loan listings: APPROVED first, then PAID, PENDING, REJECTED.
func StatusRank(status string) int {
	switch status {
	case LoanStatusApproved:
		return 1
	case LoanStatusPaid:
		return 2
	case LoanStatusPending:
		return 3
	case LoanStatusRejected:
		return 4
	default:
		return 5
	}
}

// IsValidTermType reports whether t is a supported repayment cadence
func IsValidTermType(t string) bool {
	return t == TermTypeWeekly || t == TermTypeMonthly
}

// LoanFilter narrows loan listings. Zero values match everything.
type LoanFilter struct {
	OwnerID *uuid.UUID
	Status  string
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
	Terms    int             `json:"terms" validate:"required,gt=0"`
	TermType string          `json:"termType" validate:"omitempty,oneof=WEEKLY MONTHLY"`
}

type VerifyLoanRequest struct {
	LoanID string `json:"loanId" validate:"required,uuid"`
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Remark string `json:"remark"`
}

type RepayLoanRequest struct {
	LoanID string          `json:"loanId" validate:"required,uuid"`
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
}

type SweepResponse struct {
	TotalLoansDefaulted int `json:"totalLoansDefaulted"`
}

type CustomerSummary struct {
	User           *User           `json:"user"`
	TotalLoans     int             `json:"totalLoans"`
	RequestedLoans int             `json:"requestedLoans"`
	RejectedLoans  int             `json:"rejectedLoans"`
	ActiveLoans    int             `json:"activeLoans"`
	CompletedLoans int             `json:"completedLoans"`
	TotalLiability decimal.Decimal `json:"totalLiability"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
}
