package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	LoanActivityRequestCreated = "REQUEST_CREATED"
	LoanActivityLoanApproved   = "LOAN_APPROVED"
	LoanActivityLoanRejected   = "LOAN_REJECTED"
	LoanActivityRepaymentDone  = "REPAYMENT_DONE"
	LoanActivityLoanClosed     = "LOAN_CLOSED"
	LoanActivityDefaulted      = "DEFAULTED"
)

const (
	RepaymentActivityScheduleCreated = "SCHEDULE_CREATED"
	RepaymentActivityPaymentMade     = "PAYMENT_MADE"
	RepaymentActivityScheduleUpdated = "SCHEDULE_UPDATED"
	RepaymentActivityDefaulted       = "DEFAULTED"
)

// Metadata is the free-form payload attached to an activity, stored as JSON.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported source type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// LoanActivity is an immutable audit record of a loan-level event
type LoanActivity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	LoanID    uuid.UUID `json:"loan_id" db:"loan_id"`
	Activity  string    `json:"activity" db:"activity"`
	Metadata  Metadata  `json:"metadata" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RepaymentActivity is an immutable audit record of a schedule-level event
type RepaymentActivity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	LoanID    uuid.UUID `json:"loan_id" db:"loan_id"`
	Activity  string    `json:"activity" db:"activity"`
	Metadata  Metadata  `json:"metadata" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
