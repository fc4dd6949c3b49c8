package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/cache"
	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/metrics"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type LoanService struct {
	store           repository.Store
	cache           cache.LoanCache
	metrics         *metrics.Metrics
	log             logrus.FieldLogger
	recorder        *ActivityRecorder
	now             func() time.Time
	defaultTermType string
}

func NewLoanService(
	store repository.Store,
	loanCache cache.LoanCache,
	m *metrics.Metrics,
	log logrus.FieldLogger,
	cfg *config.Config,
) *LoanService {
	if loanCache == nil {
		loanCache = cache.Noop{}
	}
	termType := domain.TermTypeWeekly
	if cfg != nil && domain.IsValidTermType(cfg.Business.DefaultTermType) {
		termType = cfg.Business.DefaultTermType
	}

	s := &LoanService{
		store:           store,
		cache:           loanCache,
		metrics:         m,
		log:             log,
		defaultTermType: termType,
	}
	s.SetClock(time.Now)
	return s
}

// SetClock replaces the time source used for due dates and timestamps
func (s *LoanService) SetClock(now func() time.Time) {
	s.now = now
	s.recorder = NewActivityRecorder(now)
}

// RequestLoan creates a PENDING loan for ownerID together with its schedule
func (s *LoanService) RequestLoan(ctx context.Context, request *domain.CreateLoanRequest, ownerID uuid.UUID) (*domain.Loan, error) {
	if !request.Amount.IsPositive() || request.Terms <= 0 {
		return nil, customError.WrapValidation("Invalid Amount / term", request)
	}

	termType := request.TermType
	if termType == "" {
		termType = s.defaultTermType
	}
	if !domain.IsValidTermType(termType) {
		return nil, customError.WrapValidation("Invalid Term Type", request)
	}

	now := s.now()
	loan := &domain.Loan{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		TotalAmount:     request.Amount,
		RemainingAmount: request.Amount,
		TotalTerms:      request.Terms,
		TermType:        termType,
		Status:          domain.LoanStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	schedules := GenerateSchedule(loan.ID, loan.TotalAmount, loan.TotalTerms, termType, now)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Ledger) error {
		if err := tx.Loans().Create(ctx, loan); err != nil {
			return err
		}

		if err := s.recorder.Loan(ctx, tx, loan.ID, domain.LoanActivityRequestCreated, domain.Metadata{
			"amount":     loan.TotalAmount,
			"totalTerms": loan.TotalTerms,
		}); err != nil {
			return err
		}

		if err := tx.Schedules().CreateSchedules(ctx, schedules); err != nil {
			return err
		}

		return s.recorder.Repayment(ctx, tx, loan.ID, domain.RepaymentActivityScheduleCreated, domain.Metadata{
			"installmentAmount": schedules[0].TotalAmount,
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("owner_id", ownerID).Error("loan request failed")
		return nil, asServiceError(err)
	}

	loan.Schedules = schedules
	s.metrics.LoansRequested.Inc()
	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"owner_id":  ownerID,
		"amount":    loan.TotalAmount.String(),
		"terms":     loan.TotalTerms,
		"term_type": termType,
	}).Info("loan requested")

	return loan, nil
}

// VerifyLoan approves or rejects a PENDING loan. Every schedule of the loan
// takes the same status as the decision.
func (s *LoanService) VerifyLoan(ctx context.Context, loanID uuid.UUID, decision, remark string, verifierID uuid.UUID) (*domain.Loan, error) {
	if decision != domain.LoanStatusApproved && decision != domain.LoanStatusRejected {
		return nil, customError.WrapValidation("Invalid Loan Status Provided", map[string]interface{}{
			"loanId": loanID,
			"status": decision,
		})
	}

	var loan *domain.Loan
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Ledger) error {
		var err error
		loan, err = getLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.Status != domain.LoanStatusPending {
			return customError.WrapInvalidLoanState(loanID.String(), loan.Status, "verification")
		}

		loan.Status = decision
		if err := tx.Loans().Update(ctx, loan); err != nil {
			return err
		}

		// Schedule statuses mirror the decision values one to one.
		if err := tx.Schedules().UpdateStatusByLoanID(ctx, loanID, decision); err != nil {
			return err
		}

		activity := domain.LoanActivityLoanApproved
		if decision == domain.LoanStatusRejected {
			activity = domain.LoanActivityLoanRejected
		}
		if err := s.recorder.Loan(ctx, tx, loanID, activity, domain.Metadata{
			"verifierId": verifierID,
			"remark":     remark,
		}); err != nil {
			return err
		}

		loan.Schedules, err = tx.Schedules().GetByLoanID(ctx, loanID)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("loan_id", loanID).Warn("loan verification failed")
		return nil, asServiceError(err)
	}

	s.invalidate(ctx, loanID)
	s.metrics.LoansVerified.WithLabelValues(decision).Inc()
	s.log.WithFields(logrus.Fields{
		"loan_id":     loanID,
		"status":      decision,
		"verifier_id": verifierID,
	}).Info("loan verified")

	return loan, nil
}

// RepayLoan applies amount to an APPROVED loan. The earliest payable
// installment is marked PAID and whatever remains is split evenly across the
// installments still payable.
func (s *LoanService) RepayLoan(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal) (*domain.Loan, error) {
	if !amount.IsPositive() {
		return nil, customError.WrapValidation("Invalid Amount", map[string]interface{}{
			"loanId": loanID,
			"amount": amount,
		})
	}

	var (
		loan   *domain.Loan
		closed bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Ledger) error {
		closed = false

		var err error
		loan, err = getLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.Status != domain.LoanStatusApproved {
			return customError.WrapInvalidLoanState(loanID.String(), loan.Status, "repayment")
		}

		if amount.GreaterThan(loan.RemainingAmount) {
			return customError.WrapInvalidAmount("Repayment amount exceeds the remaining loan amount")
		}

		payable, err := tx.Schedules().GetPayable(ctx, loanID)
		if err != nil {
			return err
		}
		if len(payable) == 0 {
			return customError.WrapNoPendingSchedule(loanID.String())
		}

		next := payable[0]
		if amount.LessThan(next.TotalAmount) {
			return customError.WrapInvalidAmount("Amount is less than the next repayment schedule amount")
		}

		// The installment keeps the amount that was due, not the amount paid.
		next.Status = domain.ScheduleStatusPaid
		if err := tx.Schedules().Update(ctx, next); err != nil {
			return err
		}
		if err := s.recorder.Repayment(ctx, tx, loanID, domain.RepaymentActivityPaymentMade, domain.Metadata{
			"amount":     amount,
			"scheduleId": next.ID,
		}); err != nil {
			return err
		}

		now := s.now()
		newRemaining := loan.RemainingAmount.Sub(amount)
		loan.RemainingAmount = newRemaining
		loan.LastPaymentDate = &now
		if newRemaining.IsZero() {
			loan.Status = domain.LoanStatusPaid
			loan.ClosingDate = &now
			closed = true
		}
		if err := tx.Loans().Update(ctx, loan); err != nil {
			return err
		}

		if err := s.recorder.Loan(ctx, tx, loanID, domain.LoanActivityRepaymentDone, domain.Metadata{
			"amount": amount,
		}); err != nil {
			return err
		}

		if closed {
			if err := s.recorder.Loan(ctx, tx, loanID, domain.LoanActivityLoanClosed, nil); err != nil {
				return err
			}
		}

		if err := s.rebalance(ctx, tx, loanID, newRemaining, next.ID); err != nil {
			return err
		}

		loan.Schedules, err = tx.Schedules().GetByLoanID(ctx, loanID)
		return err
	})
	if err != nil {
		s.metrics.Repayments.WithLabelValues("rejected").Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"loan_id": loanID,
			"amount":  amount.String(),
		}).Warn("loan repayment failed")
		return nil, asServiceError(err)
	}

	s.invalidate(ctx, loanID)
	s.metrics.Repayments.WithLabelValues("accepted").Inc()
	if closed {
		s.metrics.LoansClosed.Inc()
	}
	s.log.WithFields(logrus.Fields{
		"loan_id":   loanID,
		"amount":    amount.String(),
		"remaining": loan.RemainingAmount.String(),
		"status":    loan.Status,
	}).Info("loan repayment applied")

	return loan, nil
}

// rebalance spreads remaining evenly over the loan's payable installments.
// It also runs when remaining is zero, zeroing whatever is left.
func (s *LoanService) rebalance(ctx context.Context, tx repository.Ledger, loanID uuid.UUID, remaining decimal.Decimal, paidScheduleID uuid.UUID) error {
	rest, err := tx.Schedules().GetPayable(ctx, loanID)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return nil
	}

	share := utils.CalculateInstallment(remaining, len(rest))
	for _, schedule := range rest {
		schedule.TotalAmount = share
		if err := tx.Schedules().Update(ctx, schedule); err != nil {
			return err
		}
	}

	return s.recorder.Repayment(ctx, tx, loanID, domain.RepaymentActivityScheduleUpdated, domain.Metadata{
		"rebalanceAmount": share,
		"scheduleId":      paidScheduleID,
	})
}

// GetPendingLoans returns every loan still waiting for verification
func (s *LoanService) GetPendingLoans(ctx context.Context) ([]*domain.Loan, error) {
	return s.GetAllLoans(ctx, domain.LoanFilter{Status: domain.LoanStatusPending})
}

// GetAllLoans lists loans matching filter, APPROVED first then PAID, PENDING, REJECTED
func (s *LoanService) GetAllLoans(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	loans, err := s.store.Loans().List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loans, nil
}

// GetLoanInfo returns a loan with its schedule and both activity streams
func (s *LoanService) GetLoanInfo(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	cached, err := s.cache.Get(ctx, loanID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.WithError(customError.WrapCacheError(err)).WithField("loan_id", loanID).Warn("loan cache read failed")
	}

	// Taken before the store read so a fill never outlives a later invalidation.
	generation, genErr := s.cache.Generation(ctx, loanID)
	if genErr != nil {
		s.log.WithError(customError.WrapCacheError(genErr)).WithField("loan_id", loanID).Warn("loan cache generation read failed")
	}

	loan, err := getLoan(ctx, s.store, loanID)
	if err != nil {
		return nil, asServiceError(err)
	}

	if loan.Schedules, err = s.store.Schedules().GetByLoanID(ctx, loanID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if loan.LoanActivities, err = s.store.Activities().ListLoanActivities(ctx, loanID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if loan.RepaymentActivities, err = s.store.Activities().ListRepaymentActivities(ctx, loanID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if genErr == nil {
		if err := s.cache.Set(ctx, loan, generation); err != nil {
			s.log.WithError(customError.WrapCacheError(err)).WithField("loan_id", loanID).Warn("loan cache write failed")
		}
	}

	return loan, nil
}

// GetPaymentSchedule returns the installments of a loan by payment date
func (s *LoanService) GetPaymentSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error) {
	if _, err := getLoan(ctx, s.store, loanID); err != nil {
		return nil, asServiceError(err)
	}
	schedules, err := s.store.Schedules().GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return schedules, nil
}

// GetLoanActivity returns the loan-level audit trail, oldest first
func (s *LoanService) GetLoanActivity(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanActivity, error) {
	if _, err := getLoan(ctx, s.store, loanID); err != nil {
		return nil, asServiceError(err)
	}
	activities, err := s.store.Activities().ListLoanActivities(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return activities, nil
}

// GetRepaymentActivity returns the schedule-level audit trail, oldest first
func (s *LoanService) GetRepaymentActivity(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentActivity, error) {
	if _, err := getLoan(ctx, s.store, loanID); err != nil {
		return nil, asServiceError(err)
	}
	activities, err := s.store.Activities().ListRepaymentActivities(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return activities, nil
}

// CustomerSummary aggregates the loans owned by user
func (s *LoanService) CustomerSummary(ctx context.Context, user *domain.User) (*domain.CustomerSummary, error) {
	loans, err := s.GetAllLoans(ctx, domain.LoanFilter{OwnerID: &user.ID})
	if err != nil {
		return nil, err
	}

	summary := &domain.CustomerSummary{
		User:           user,
		TotalLoans:     len(loans),
		TotalLiability: decimal.Zero,
		TotalPaid:      decimal.Zero,
	}
	for _, loan := range loans {
		switch loan.Status {
		case domain.LoanStatusPending:
			summary.RequestedLoans++
		case domain.LoanStatusRejected:
			summary.RejectedLoans++
		case domain.LoanStatusApproved:
			summary.ActiveLoans++
		case domain.LoanStatusPaid:
			summary.CompletedLoans++
		}

		summary.TotalLiability = summary.TotalLiability.Add(loan.RemainingAmount)
		if paid := loan.TotalAmount.Sub(loan.RemainingAmount); paid.IsPositive() {
			summary.TotalPaid = summary.TotalPaid.Add(paid)
		}
	}

	return summary, nil
}

func (s *LoanService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.log.WithError(customError.WrapCacheError(err)).WithField("loan_ids", ids).Warn("loan cache invalidation failed")
	}
}

func getLoan(ctx context.Context, l repository.Ledger, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := l.Loans().GetByID(ctx, loanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	return loan, err
}

// asServiceError passes business errors through and wraps everything else
// as a database failure.
func asServiceError(err error) error {
	if _, ok := customError.AsBusinessError(err); ok {
		return err
	}
	return customError.WrapDatabaseError(err)
}
