package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"

	"github.com/sirupsen/logrus"
)

// Sweep marks every APPROVED schedule due before now as DEFAULTED and
// returns the number of distinct loans touched. Loan status is left as is.
// The whole sweep commits or rolls back as one transaction.
func (s *LoanService) Sweep(ctx context.Context, now time.Time) (int, error) {
	var touched []uuid.UUID

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Ledger) error {
		touched = touched[:0]

		overdue, err := tx.Schedules().GetOverdue(ctx, now)
		if err != nil {
			return err
		}

		seen := make(map[uuid.UUID]bool)
		for _, schedule := range overdue {
			schedule.Status = domain.ScheduleStatusDefaulted
			if err := tx.Schedules().Update(ctx, schedule); err != nil {
				return err
			}
			if err := s.recorder.Repayment(ctx, tx, schedule.LoanID, domain.RepaymentActivityDefaulted, domain.Metadata{
				"scheduleId":  schedule.ID,
				"defaultDate": now,
			}); err != nil {
				return err
			}

			if !seen[schedule.LoanID] {
				seen[schedule.LoanID] = true
				touched = append(touched, schedule.LoanID)
			}
		}

		for _, loanID := range touched {
			if err := s.recorder.Loan(ctx, tx, loanID, domain.LoanActivityDefaulted, domain.Metadata{
				"defaultDate": now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("failed").Inc()
		s.log.WithError(err).Error("default sweep failed")
		return 0, asServiceError(err)
	}

	s.invalidate(ctx, touched...)
	s.metrics.SweepRuns.WithLabelValues("succeeded").Inc()
	s.metrics.SweepDefaulted.Set(float64(len(touched)))
	s.log.WithFields(logrus.Fields{
		"loans_defaulted": len(touched),
		"as_of":           now.Format(time.RFC3339),
	}).Info("default sweep completed")

	return len(touched), nil
}
