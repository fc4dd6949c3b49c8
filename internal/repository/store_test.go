package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loanColumnNames = []string{
	"id", "owner_id", "total_amount", "remaining_amount", "total_terms", "term_type", "status",
	"last_payment_date", "closing_date", "created_at", "updated_at",
}

func newMockStore(t *testing.T, retries int) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgresStore(sqlx.NewDb(db, "sqlmock"), retries), mock
}

func TestLoanRepository_Create(t *testing.T) {
	store, mock := newMockStore(t, 0)
	now := time.Now()
	loan := &domain.Loan{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		TotalAmount:     decimal.NewFromInt(3000),
		RemainingAmount: decimal.NewFromInt(3000),
		TotalTerms:      3,
		TermType:        domain.TermTypeWeekly,
		Status:          domain.LoanStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loans")).
		WithArgs(loan.ID.String(), loan.OwnerID.String(), "3000", "3000", 3, "WEEKLY", "PENDING", nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Loans().Create(context.Background(), loan)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_GetByID(t *testing.T) {
	id := uuid.New()
	owner := uuid.New()
	now := time.Now().UTC()

	tests := []struct {
		name        string
		rows        *sqlmock.Rows
		expectedErr error
	}{
		{
			name: "found",
			rows: sqlmock.NewRows(loanColumnNames).
				AddRow(id.String(), owner.String(), "1000", "400", 2, "WEEKLY", "APPROVED", now, nil, now, now),
		},
		{
			name:        "not found",
			rows:        sqlmock.NewRows(loanColumnNames),
			expectedErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t, 0)
			mock.ExpectQuery(`SELECT .+ FROM loans WHERE id = \$1$`).
				WithArgs(id.String()).
				WillReturnRows(tt.rows)

			loan, err := store.Loans().GetByID(context.Background(), id)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, loan)
			} else {
				require.NoError(t, err)
				assert.Equal(t, id, loan.ID)
				assert.Equal(t, owner, loan.OwnerID)
				assert.True(t, loan.RemainingAmount.Equal(decimal.NewFromInt(400)))
				require.NotNil(t, loan.LastPaymentDate)
				assert.Nil(t, loan.ClosingDate)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoanRepository_List(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name   string
		filter domain.LoanFilter
		where  string
		args   []driver.Value
	}{
		{"no filter", domain.LoanFilter{}, `FROM loans\s+ORDER BY CASE status`, nil},
		{"status", domain.LoanFilter{Status: "PENDING"}, `WHERE status = \$1`, []driver.Value{"PENDING"}},
		{"owner and status", domain.LoanFilter{OwnerID: &owner, Status: "APPROVED"}, `WHERE owner_id = \$1 AND status = \$2`, []driver.Value{owner.String(), "APPROVED"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t, 0)

			mock.ExpectQuery(tt.where).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(loanColumnNames))

			loans, err := store.Loans().List(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Empty(t, loans)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoanRepository_Update_NotFound(t *testing.T) {
	store, mock := newMockStore(t, 0)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Loans().Update(context.Background(), &domain.Loan{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_AppendStoresMetadataAsJSON(t *testing.T) {
	store, mock := newMockStore(t, 0)
	activity := &domain.LoanActivity{
		ID:        uuid.New(),
		LoanID:    uuid.New(),
		Activity:  domain.LoanActivityRepaymentDone,
		Metadata:  domain.Metadata{"amount": "600"},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loan_activities")).
		WithArgs(activity.ID.String(), activity.LoanID.String(), "REPAYMENT_DONE", `{"amount":"600"}`, activity.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Activities().AppendLoanActivity(context.Background(), activity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitLocksRows(t *testing.T) {
	store, mock := newMockStore(t, 0)
	loanID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM repayment_schedules\s+WHERE status = 'APPROVED' AND payment_date < \$1\s+ORDER BY loan_id, payment_date ASC FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "loan_id", "total_amount", "payment_date", "status", "created_at", "updated_at"}).
			AddRow(uuid.New().String(), loanID.String(), "500", time.Now(), "APPROVED", time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE repayment_schedules")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Ledger) error {
		overdue, err := tx.Schedules().GetOverdue(ctx, time.Now())
		if err != nil {
			return err
		}
		overdue[0].Status = domain.ScheduleStatusDefaulted
		return tx.Schedules().Update(ctx, overdue[0])
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t, 3)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO loans")).WillReturnError(boom)
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Ledger) error {
		return tx.Loans().Create(ctx, &domain.Loan{ID: uuid.New()})
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t, 0)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(ctx context.Context, tx Ledger) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesSerializationFailures(t *testing.T) {
	store, mock := newMockStore(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans")).WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loans")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := store.WithTx(context.Background(), func(ctx context.Context, tx Ledger) error {
		attempts++
		return tx.Loans().Update(ctx, &domain.Loan{ID: uuid.New()})
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_GivesUpAfterRetries(t *testing.T) {
	store, mock := newMockStore(t, 1)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans")).WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Ledger) error {
		return tx.Loans().Update(ctx, &domain.Loan{ID: uuid.New()})
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_UniqueViolation(t *testing.T) {
	store, mock := newMockStore(t, 0)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	err := store.Users().Create(context.Background(), &domain.User{ID: uuid.New(), Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
