package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
)

// ActivityRecorder appends audit records through whatever Ledger it is
// given, so the records land in the caller's transaction.
type ActivityRecorder struct {
	now func() time.Time
}

func NewActivityRecorder(now func() time.Time) *ActivityRecorder {
	if now == nil {
		now = time.Now
	}
	return &ActivityRecorder{now: now}
}

func (r *ActivityRecorder) Loan(ctx context.Context, tx repository.Ledger, loanID uuid.UUID, activity string, metadata domain.Metadata) error {
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	return tx.Activities().AppendLoanActivity(ctx, &domain.LoanActivity{
		ID:        uuid.New(),
		LoanID:    loanID,
		Activity:  activity,
		Metadata:  metadata,
		CreatedAt: r.now(),
	})
}

func (r *ActivityRecorder) Repayment(ctx context.Context, tx repository.Ledger, loanID uuid.UUID, activity string, metadata domain.Metadata) error {
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	return tx.Activities().AppendRepaymentActivity(ctx, &domain.RepaymentActivity{
		ID:        uuid.New(),
		LoanID:    loanID,
		Activity:  activity,
		Metadata:  metadata,
		CreatedAt: r.now(),
	})
}
