package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

// activityRepository persists both activity streams. Rows are insert-only;
// seq breaks ties between activities written in the same instant.
type activityRepository struct {
	q sqlx.ExtContext
}

func (r *activityRepository) AppendLoanActivity(ctx context.Context, activity *domain.LoanActivity) error {
	query := `
		INSERT INTO loan_activities (id, loan_id, activity, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query,
		activity.ID,
		activity.LoanID,
		activity.Activity,
		activity.Metadata,
		activity.CreatedAt,
	)
	return err
}

func (r *activityRepository) AppendRepaymentActivity(ctx context.Context, activity *domain.RepaymentActivity) error {
	query := `
		INSERT INTO repayment_activities (id, loan_id, activity, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query,
		activity.ID,
		activity.LoanID,
		activity.Activity,
		activity.Metadata,
		activity.CreatedAt,
	)
	return err
}

func (r *activityRepository) ListLoanActivities(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanActivity, error) {
	query := `
		SELECT id, loan_id, activity, metadata, created_at
		FROM loan_activities
		WHERE loan_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	activities := []*domain.LoanActivity{}
	if err := sqlx.SelectContext(ctx, r.q, &activities, query, loanID); err != nil {
		return nil, err
	}

	return activities, nil
}

func (r *activityRepository) ListRepaymentActivities(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentActivity, error) {
	query := `
		SELECT id, loan_id, activity, metadata, created_at
		FROM repayment_activities
		WHERE loan_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	activities := []*domain.RepaymentActivity{}
	if err := sqlx.SelectContext(ctx, r.q, &activities, query, loanID); err != nil {
		return nil, err
	}

	return activities, nil
}
