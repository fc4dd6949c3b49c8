package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	loans     LoanService
	users     UserService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewAdminHandler(loans LoanService, users UserService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		loans:     loans,
		users:     users,
		validator: NewValidator(),
		log:       log,
	}
}

// PendingLoans lists the loans waiting for a decision
func (h *AdminHandler) PendingLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.GetPendingLoans(r.Context())
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, loans)
}

// VerifyLoan approves or rejects a pending loan on behalf of the caller
func (h *AdminHandler) VerifyLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.VerifyLoanRequest
	if !decodeAndValidate(w, r, h.validator, h.log, &request) {
		return
	}

	verifier := UserFromContext(r.Context())
	loan, err := h.loans.VerifyLoan(r.Context(), uuid.MustParse(request.LoanID), request.Status, request.Remark, verifier.ID)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, loan)
}

// CreateCustomer registers a new customer account
func (h *AdminHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateCustomerRequest
	if !decodeAndValidate(w, r, h.validator, h.log, &request) {
		return
	}

	user, err := h.users.CreateCustomer(r.Context(), &request)
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Created(w, user)
}
