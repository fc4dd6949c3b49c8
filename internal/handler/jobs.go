package handler

import (
	"net/http"
	"time"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/sirupsen/logrus"
)

type JobsHandler struct {
	loans LoanService
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewJobsHandler(loans LoanService, log logrus.FieldLogger) *JobsHandler {
	return &JobsHandler{loans: loans, now: time.Now, log: log}
}

// CheckForLatePayments runs the default sweep on demand
func (h *JobsHandler) CheckForLatePayments(w http.ResponseWriter, r *http.Request) {
	count, err := h.loans.Sweep(r.Context(), h.now())
	if err != nil {
		response.FromError(w, err, h.log)
		return
	}
	response.Success(w, domain.SweepResponse{TotalLoansDefaulted: count})
}
