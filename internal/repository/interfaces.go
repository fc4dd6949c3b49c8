package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned by inserts that collide with a unique key.
var ErrDuplicate = errors.New("duplicate record")

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by id. Inside a transaction the row is locked.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List returns loans matching filter ordered by status rank then created_at
	List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error)

	// Update updates the mutable fields of a loan
	Update(ctx context.Context, loan *domain.Loan) error
}

// ScheduleRepository defines the interface for repayment schedule operations
type ScheduleRepository interface {
	// CreateSchedules creates repayment schedule entries
	CreateSchedules(ctx context.Context, schedules []*domain.RepaymentSchedule) error

	// GetByLoanID retrieves the schedule of a loan ordered by payment_date
	GetByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error)

	// GetPayable returns APPROVED or DEFAULTED schedules of a loan ordered by payment_date
	GetPayable(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error)

	// UpdateStatusByLoanID sets status on every schedule of a loan
	UpdateStatusByLoanID(ctx context.Context, loanID uuid.UUID, status string) error

	// Update updates status and amount of a single schedule
	Update(ctx context.Context, schedule *domain.RepaymentSchedule) error

	// GetOverdue returns APPROVED schedules whose payment_date is before now
	GetOverdue(ctx context.Context, now time.Time) ([]*domain.RepaymentSchedule, error)
}

// ActivityRepository appends and lists the two activity streams of a loan
type ActivityRepository interface {
	AppendLoanActivity(ctx context.Context, activity *domain.LoanActivity) error
	AppendRepaymentActivity(ctx context.Context, activity *domain.RepaymentActivity) error

	// ListLoanActivities returns loan activities ordered by created_at
	ListLoanActivities(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanActivity, error)

	// ListRepaymentActivities returns repayment activities ordered by created_at
	ListRepaymentActivities(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentActivity, error)
}

// UserRepository defines the interface for user lookups
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Ledger groups the repositories a lifecycle operation works with.
// The same Ledger is handed to WithTx callbacks bound to the open transaction.
type Ledger interface {
	Loans() LoanRepository
	Schedules() ScheduleRepository
	Activities() ActivityRepository
}

// Store is the persistence entry point.
type Store interface {
	Ledger
	Users() UserRepository

	// WithTx runs fn inside one serializable transaction. The transaction
	// commits when fn returns nil and rolls back on any error or panic.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error

	Ping(ctx context.Context) error
}
