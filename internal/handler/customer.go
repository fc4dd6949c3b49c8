package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type CustomerHandler struct {
	loans     LoanService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewCustomerHandler(loans LoanService, log logrus.FieldLogger) *CustomerHandler {
	return &CustomerHandler{
		loans:     loans,
		validator: NewValidator(),
		log:       log,
	}
}

// Details returns the caller's profile with a summary of their loans
func (h *CustomerHandler) Details(w http.ResponseWriter, r *http.Request) {
	summary, err := h.loans.CustomerSummary(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, summary)
}

// RequestLoan creates a PENDING loan owned by the caller
func (h *CustomerHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !decodeAndValidate(w, r, h.validator, h.log, &request) {
		return
	}

	user := UserFromContext(r.Context())
	loan, err := h.loans.RequestLoan(r.Context(), &request, user.ID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, loan)
}

// RepayLoan applies a repayment to one of the caller's loans
func (h *CustomerHandler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.RepayLoanRequest
	if !decodeAndValidate(w, r, h.validator, h.log, &request) {
		return
	}

	loanID := uuid.MustParse(request.LoanID)
	loan, err := h.loans.GetLoanInfo(r.Context(), loanID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}

	user := UserFromContext(r.Context())
	if loan.OwnerID != user.ID {
		response.FromError(w, customError.WrapUnauthorized("Unauthorized loan access"), h.log)
		return
	}

	repaid, err := h.loans.RepayLoan(r.Context(), loanID, request.Amount)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, repaid)
}
