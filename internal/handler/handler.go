package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LoanService is the part of the lifecycle engine the HTTP layer drives
type LoanService interface {
	RequestLoan(ctx context.Context, request *domain.CreateLoanRequest, ownerID uuid.UUID) (*domain.Loan, error)
	VerifyLoan(ctx context.Context, loanID uuid.UUID, decision, remark string, verifierID uuid.UUID) (*domain.Loan, error)
	RepayLoan(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal) (*domain.Loan, error)
	Sweep(ctx context.Context, now time.Time) (int, error)

	GetPendingLoans(ctx context.Context) ([]*domain.Loan, error)
	GetAllLoans(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error)
	GetLoanInfo(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	GetPaymentSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentSchedule, error)
	GetLoanActivity(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanActivity, error)
	GetRepaymentActivity(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentActivity, error)
	CustomerSummary(ctx context.Context, user *domain.User) (*domain.CustomerSummary, error)
}

// UserService resolves callers and registers customers
type UserService interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateCustomer(ctx context.Context, request *domain.CreateCustomerRequest) (*domain.User, error)
}

// NewValidator returns a validator that understands decimal amounts.
// decimal_gt=N accepts amounts strictly greater than N.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	if err := registerDecimalGT(v, "decimal_gt"); err != nil {
		panic(fmt.Sprintf("register decimal_gt validation: %v", err))
	}

	return v
}

func registerDecimalGT(v *validator.Validate, tag string) error {
	return v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		value, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return value.GreaterThan(bound)
	})
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// the error response is already written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, log logrus.FieldLogger, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON payload", err)
		return false
	}

	if err := v.Struct(dst); err != nil {
		response.FromError(w, customError.WrapValidation("Validation failed: "+err.Error(), dst), log)
		return false
	}

	return true
}

func loanIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, customError.WrapLoanNotFound(mux.Vars(r)["id"])
	}
	return id, nil
}
