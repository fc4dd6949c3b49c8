// Package memory is an in-process Store. Transactions are serialized behind
// one lock and run against a copy of the state, which replaces the live state
// only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	"github.com/segyhp/lending-engine/pkg/utils"
)

type state struct {
	loans               map[uuid.UUID]*domain.Loan
	schedules           map[uuid.UUID]*domain.RepaymentSchedule
	loanActivities      []*domain.LoanActivity
	repaymentActivities []*domain.RepaymentActivity
}

func newState() *state {
	return &state{
		loans:     make(map[uuid.UUID]*domain.Loan),
		schedules: make(map[uuid.UUID]*domain.RepaymentSchedule),
	}
}

// clone deep-copies records that are mutated in place. Activities are
// insert-only, so copying the slice header is enough.
func (s *state) clone() *state {
	c := newState()
	for id, l := range s.loans {
		c.loans[id] = copyLoan(l)
	}
	for id, sc := range s.schedules {
		cp := *sc
		c.schedules[id] = &cp
	}
	c.loanActivities = append([]*domain.LoanActivity(nil), s.loanActivities...)
	c.repaymentActivities = append([]*domain.RepaymentActivity(nil), s.repaymentActivities...)
	return c
}

type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state

	usersMu sync.RWMutex
	users   map[uuid.UUID]*domain.User
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: newState(),
		users: make(map[uuid.UUID]*domain.User),
	}
}

func (s *Store) Loans() repository.LoanRepository {
	return &loanRepo{view: s.readView()}
}

func (s *Store) Schedules() repository.ScheduleRepository {
	return &scheduleRepo{view: s.readView()}
}

func (s *Store) Activities() repository.ActivityRepository {
	return &activityRepo{view: s.readView()}
}

func (s *Store) Users() repository.UserRepository {
	return &userRepo{store: s}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// WithTx runs fn against a private copy of the state. Only one transaction
// runs at a time, which makes every transaction serializable.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Ledger) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	tx := &txLedger{view: &view{direct: working}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// view gives repositories access to a state. Inside a transaction it points
// at the working copy; outside one, reads take the read lock and every write
// is its own transaction.
type view struct {
	store  *Store
	direct *state
}

func (s *Store) readView() *view {
	return &view{store: s}
}

func (v *view) read(fn func(st *state)) {
	if v.direct != nil {
		fn(v.direct)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.state)
}

func (v *view) write(fn func(st *state) error) error {
	if v.direct != nil {
		return fn(v.direct)
	}
	// A write outside WithTx is its own transaction.
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type txLedger struct {
	view *view
}

func (t *txLedger) Loans() repository.LoanRepository {
	return &loanRepo{view: t.view}
}

func (t *txLedger) Schedules() repository.ScheduleRepository {
	return &scheduleRepo{view: t.view}
}

func (t *txLedger) Activities() repository.ActivityRepository {
	return &activityRepo{view: t.view}
}

type loanRepo struct {
	view *view
}

func (r *loanRepo) Create(_ context.Context, loan *domain.Loan) error {
	return r.view.write(func(st *state) error {
		st.loans[loan.ID] = copyLoan(loan)
		return nil
	})
}

func (r *loanRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	var out *domain.Loan
	r.view.read(func(st *state) {
		if l, ok := st.loans[id]; ok {
			out = copyLoan(l)
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *loanRepo) List(_ context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	loans := []*domain.Loan{}
	r.view.read(func(st *state) {
		for _, l := range st.loans {
			if filter.OwnerID != nil && l.OwnerID != *filter.OwnerID {
				continue
			}
			if filter.Status != "" && l.Status != filter.Status {
				continue
			}
			loans = append(loans, copyLoan(l))
		}
	})

	sort.SliceStable(loans, func(i, j int) bool {
		ri, rj := domain.StatusRank(loans[i].Status), domain.StatusRank(loans[j].Status)
		if ri != rj {
			return ri < rj
		}
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.Before(loans[j].CreatedAt)
		}
		return strings.Compare(loans[i].ID.String(), loans[j].ID.String()) < 0
	})
	return loans, nil
}

func (r *loanRepo) Update(_ context.Context, loan *domain.Loan) error {
	return r.view.write(func(st *state) error {
		existing, ok := st.loans[loan.ID]
		if !ok {
			return repository.ErrNotFound
		}
		loan.UpdatedAt = time.Now()
		existing.RemainingAmount = loan.RemainingAmount
		existing.Status = loan.Status
		existing.LastPaymentDate = copyTime(loan.LastPaymentDate)
		existing.ClosingDate = copyTime(loan.ClosingDate)
		existing.UpdatedAt = loan.UpdatedAt
		return nil
	})
}

type scheduleRepo struct {
	view *view
}

func (r *scheduleRepo) CreateSchedules(_ context.Context, schedules []*domain.RepaymentSchedule) error {
	return r.view.write(func(st *state) error {
		for _, sc := range schedules {
			cp := *sc
			st.schedules[sc.ID] = &cp
		}
		return nil
	})
}

func (r *scheduleRepo) GetByLoanID(_ context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error) {
	return r.selectSorted(func(sc *domain.RepaymentSchedule) bool {
		return sc.LoanID == loanID
	}), nil
}

func (r *scheduleRepo) GetPayable(_ context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error) {
	return r.selectSorted(func(sc *domain.RepaymentSchedule) bool {
		return sc.LoanID == loanID && sc.IsPayable()
	}), nil
}

func (r *scheduleRepo) UpdateStatusByLoanID(_ context.Context, loanID uuid.UUID, status string) error {
	now := time.Now()
	return r.view.write(func(st *state) error {
		for _, sc := range st.schedules {
			if sc.LoanID == loanID {
				sc.Status = status
				sc.UpdatedAt = now
			}
		}
		return nil
	})
}

func (r *scheduleRepo) Update(_ context.Context, schedule *domain.RepaymentSchedule) error {
	return r.view.write(func(st *state) error {
		existing, ok := st.schedules[schedule.ID]
		if !ok {
			return repository.ErrNotFound
		}
		schedule.UpdatedAt = time.Now()
		existing.TotalAmount = schedule.TotalAmount
		existing.Status = schedule.Status
		existing.UpdatedAt = schedule.UpdatedAt
		return nil
	})
}

func (r *scheduleRepo) GetOverdue(_ context.Context, now time.Time) ([]*domain.RepaymentSchedule, error) {
	out := r.selectSorted(func(sc *domain.RepaymentSchedule) bool {
		return sc.Status == domain.ScheduleStatusApproved && utils.IsDateOverdue(sc.PaymentDate, now)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return strings.Compare(out[i].LoanID.String(), out[j].LoanID.String()) < 0
	})
	return out, nil
}

func (r *scheduleRepo) selectSorted(match func(*domain.RepaymentSchedule) bool) []*domain.RepaymentSchedule {
	out := []*domain.RepaymentSchedule{}
	r.view.read(func(st *state) {
		for _, sc := range st.schedules {
			if match(sc) {
				cp := *sc
				out = append(out, &cp)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

type activityRepo struct {
	view *view
}

func (r *activityRepo) AppendLoanActivity(_ context.Context, activity *domain.LoanActivity) error {
	cp := *activity
	return r.view.write(func(st *state) error {
		st.loanActivities = append(st.loanActivities, &cp)
		return nil
	})
}

func (r *activityRepo) AppendRepaymentActivity(_ context.Context, activity *domain.RepaymentActivity) error {
	cp := *activity
	return r.view.write(func(st *state) error {
		st.repaymentActivities = append(st.repaymentActivities, &cp)
		return nil
	})
}

// Activities are kept in insertion order, so a stable sort by created_at
// preserves write order for equal timestamps.
func (r *activityRepo) ListLoanActivities(_ context.Context, loanID uuid.UUID) ([]*domain.LoanActivity, error) {
	out := []*domain.LoanActivity{}
	r.view.read(func(st *state) {
		for _, a := range st.loanActivities {
			if a.LoanID == loanID {
				cp := *a
				out = append(out, &cp)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *activityRepo) ListRepaymentActivities(_ context.Context, loanID uuid.UUID) ([]*domain.RepaymentActivity, error) {
	out := []*domain.RepaymentActivity{}
	r.view.read(func(st *state) {
		for _, a := range st.repaymentActivities {
			if a.LoanID == loanID {
				cp := *a
				out = append(out, &cp)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type userRepo struct {
	store *Store
}

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	r.store.usersMu.Lock()
	defer r.store.usersMu.Unlock()
	for _, u := range r.store.users {
		if u.Username == user.Username {
			return repository.ErrDuplicate
		}
	}
	cp := *user
	r.store.users[user.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.usersMu.RLock()
	defer r.store.usersMu.RUnlock()
	if u, ok := r.store.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.store.usersMu.RLock()
	defer r.store.usersMu.RUnlock()
	for _, u := range r.store.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func copyLoan(l *domain.Loan) *domain.Loan {
	cp := *l
	cp.LastPaymentDate = copyTime(l.LastPaymentDate)
	cp.ClosingDate = copyTime(l.ClosingDate)
	cp.Schedules = nil
	cp.LoanActivities = nil
	cp.RepaymentActivities = nil
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
