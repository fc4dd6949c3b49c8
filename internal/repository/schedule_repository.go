package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const scheduleColumns = `id, loan_id, total_amount, payment_date, status, created_at, updated_at`

type scheduleRepository struct {
	q    sqlx.ExtContext
	lock bool
}

func (r *scheduleRepository) CreateSchedules(ctx context.Context, schedules []*domain.RepaymentSchedule) error {
	query := `
		INSERT INTO repayment_schedules (id, loan_id, total_amount, payment_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, schedule := range schedules {
		_, err := r.q.ExecContext(ctx, query,
			schedule.ID,
			schedule.LoanID,
			schedule.TotalAmount,
			schedule.PaymentDate,
			schedule.Status,
			schedule.CreatedAt,
			schedule.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *scheduleRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM repayment_schedules
		WHERE loan_id = $1
		ORDER BY payment_date ASC
	`

	schedules := []*domain.RepaymentSchedule{}
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, loanID); err != nil {
		return nil, err
	}

	return schedules, nil
}

func (r *scheduleRepository) GetPayable(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM repayment_schedules
		WHERE loan_id = $1 AND status IN ('APPROVED', 'DEFAULTED')
		ORDER BY payment_date ASC` + lockClause(r.lock)

	schedules := []*domain.RepaymentSchedule{}
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, loanID); err != nil {
		return nil, err
	}

	return schedules, nil
}

func (r *scheduleRepository) UpdateStatusByLoanID(ctx context.Context, loanID uuid.UUID, status string) error {
	query := `
		UPDATE repayment_schedules
		SET status = $2, updated_at = $3
		WHERE loan_id = $1
	`

	_, err := r.q.ExecContext(ctx, query, loanID, status, time.Now())
	return err
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *domain.RepaymentSchedule) error {
	query := `
		UPDATE repayment_schedules
		SET total_amount = $2, status = $3, updated_at = $4
		WHERE id = $1
	`

	schedule.UpdatedAt = time.Now()
	res, err := r.q.ExecContext(ctx, query, schedule.ID, schedule.TotalAmount, schedule.Status, schedule.UpdatedAt)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (r *scheduleRepository) GetOverdue(ctx context.Context, now time.Time) ([]*domain.RepaymentSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM repayment_schedules
		WHERE status = 'APPROVED' AND payment_date < $1
		ORDER BY loan_id, payment_date ASC` + lockClause(r.lock)

	schedules := []*domain.RepaymentSchedule{}
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, now); err != nil {
		return nil, err
	}

	return schedules, nil
}
