package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLoanCache struct {
	mock.Mock
}

func (m *MockLoanCache) Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanCache) Generation(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLoanCache) Set(ctx context.Context, loan *domain.Loan, generation int64) error {
	args := m.Called(ctx, loan, generation)
	return args.Error(0)
}

func (m *MockLoanCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}
