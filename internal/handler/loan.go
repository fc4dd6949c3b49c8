package handler

import (
	"net/http"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/sirupsen/logrus"
)

// LoanHandler serves the read projections of loans. Routes with an {id}
// run behind Middleware.LoanAccess.
type LoanHandler struct {
	loans LoanService
	log   logrus.FieldLogger
}

func NewLoanHandler(loans LoanService, log logrus.FieldLogger) *LoanHandler {
	return &LoanHandler{loans: loans, log: log}
}

// All lists every loan for admins and the caller's own loans for customers
func (h *LoanHandler) All(w http.ResponseWriter, r *http.Request) {
	var filter domain.LoanFilter
	if user := UserFromContext(r.Context()); !user.IsAdmin() && user != nil {
		filter.OwnerID = &user.ID
	}

	loans, err := h.loans.GetAllLoans(r.Context(), filter)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, loans)
}

// Detail returns the loan with its schedule and activity trail
func (h *LoanHandler) Detail(w http.ResponseWriter, r *http.Request) {
	response.Success(w, loanFromContext(r.Context()))
}

func (h *LoanHandler) PaymentSchedule(w http.ResponseWriter, r *http.Request) {
	loan := loanFromContext(r.Context())
	schedules, err := h.loans.GetPaymentSchedule(r.Context(), loan.ID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, schedules)
}

func (h *LoanHandler) LoanActivity(w http.ResponseWriter, r *http.Request) {
	loan := loanFromContext(r.Context())
	activities, err := h.loans.GetLoanActivity(r.Context(), loan.ID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, activities)
}

func (h *LoanHandler) RepaymentActivity(w http.ResponseWriter, r *http.Request) {
	loan := loanFromContext(r.Context())
	activities, err := h.loans.GetRepaymentActivity(r.Context(), loan.ID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, activities)
}
