package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	ErrValidation         = errors.New("validation failed")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidLoanState   = errors.New("invalid loan state")
	ErrInvalidAmount      = errors.New("invalid repayment amount")
	ErrNoPendingSchedule  = errors.New("no pending repayment schedule")
	ErrUnauthorized       = errors.New("unauthorized")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
	// Details carries the offending payload for validation errors.
	Details interface{}
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeLoanNotFound      = "LOAN_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeUserAlreadyExists = "USER_ALREADY_EXISTS"
	ErrCodeInvalidLoanState  = "INVALID_LOAN_STATE"
	ErrCodeInvalidAmount     = "INVALID_REPAYMENT_AMOUNT"
	ErrCodeNoPendingSchedule = "NO_PENDING_SCHEDULE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeCacheError        = "CACHE_ERROR"
)

func WrapValidation(message string, payload interface{}) *BusinessError {
	e := NewBusinessError(ErrCodeValidation, message, ErrValidation)
	e.Details = payload
	return e
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapUserNotFound(username string) *BusinessError {
	return NewBusinessError(
		ErrCodeUserNotFound,
		fmt.Sprintf("User %s not found", username),
		ErrUserNotFound,
	)
}

func WrapUserAlreadyExists(username string) *BusinessError {
	return NewBusinessError(
		ErrCodeUserAlreadyExists,
		fmt.Sprintf("User already exists with username %s", username),
		ErrUserAlreadyExists,
	)
}

func WrapInvalidLoanState(loanID, status, operation string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidLoanState,
		fmt.Sprintf("Loan %s in status %s is not open for %s", loanID, status, operation),
		ErrInvalidLoanState,
	)
}

func WrapInvalidAmount(message string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidAmount, message, ErrInvalidAmount)
}

func WrapNoPendingSchedule(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoPendingSchedule,
		fmt.Sprintf("No pending repayment schedules found for loan %s", loanID),
		ErrNoPendingSchedule,
	)
}

func WrapUnauthorized(message string) *BusinessError {
	return NewBusinessError(ErrCodeUnauthorized, message, ErrUnauthorized)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// HTTPStatus maps an error to the status code the API responds with.
// Unclassified errors are internal.
func HTTPStatus(err error) int {
	var be *BusinessError
	if !errors.As(err, &be) {
		return http.StatusInternalServerError
	}
	switch be.Code {
	case ErrCodeValidation, ErrCodeInvalidLoanState, ErrCodeInvalidAmount,
		ErrCodeNoPendingSchedule, ErrCodeUserAlreadyExists:
		return http.StatusBadRequest
	case ErrCodeLoanNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// AsBusinessError returns the BusinessError in err's chain, if any
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
