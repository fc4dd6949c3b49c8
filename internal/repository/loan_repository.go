package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, owner_id, total_amount, remaining_amount, total_terms, term_type, status,
		last_payment_date, closing_date, created_at, updated_at`

type loanRepository struct {
	q    sqlx.ExtContext
	lock bool
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, owner_id, total_amount, remaining_amount, total_terms, term_type, status,
			last_payment_date, closing_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		loan.ID,
		loan.OwnerID,
		loan.TotalAmount,
		loan.RemainingAmount,
		loan.TotalTerms,
		loan.TermType,
		loan.Status,
		loan.LastPaymentDate,
		loan.ClosingDate,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1` + lockClause(r.lock)

	var loan domain.Loan
	err := sqlx.GetContext(ctx, r.q, &loan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += `
		ORDER BY CASE status
			WHEN 'APPROVED' THEN 1
			WHEN 'PAID' THEN 2
			WHEN 'PENDING' THEN 3
			WHEN 'REJECTED' THEN 4
			ELSE 5
		END, created_at ASC`

	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, r.q, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET remaining_amount = $2, status = $3, last_payment_date = $4, closing_date = $5, updated_at = $6
		WHERE id = $1
	`

	loan.UpdatedAt = time.Now()
	res, err := r.q.ExecContext(ctx, query,
		loan.ID,
		loan.RemainingAmount,
		loan.Status,
		loan.LastPaymentDate,
		loan.ClosingDate,
		loan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
