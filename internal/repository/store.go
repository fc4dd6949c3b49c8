package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrConflict is returned when a serializable transaction kept failing
// with serialization or deadlock errors after all retries.
var ErrConflict = errors.New("transaction conflict")

// Postgres SQLSTATEs that mean "run the whole transaction again".
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

type postgresStore struct {
	db      *sqlx.DB
	retries int
	ledger
}

// NewPostgresStore returns a Store backed by db. retries is how many times a
// transaction is re-run after a serialization failure.
func NewPostgresStore(db *sqlx.DB, retries int) Store {
	return &postgresStore{
		db:      db,
		retries: retries,
		ledger:  ledger{q: db},
	}
}

func (s *postgresStore) Users() UserRepository {
	return &userRepository{q: s.db}
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func (s *postgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, &ledger{q: tx, lock: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == sqlStateSerializationFailure || pqErr.Code == sqlStateDeadlockDetected
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == sqlStateUniqueViolation
}

// ledger binds the repositories to either the pool or an open transaction.
type ledger struct {
	q    sqlx.ExtContext
	lock bool
}

func (l *ledger) Loans() LoanRepository {
	return &loanRepository{q: l.q, lock: l.lock}
}

func (l *ledger) Schedules() ScheduleRepository {
	return &scheduleRepository{q: l.q, lock: l.lock}
}

func (l *ledger) Activities() ActivityRepository {
	return &activityRepository{q: l.q}
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}
