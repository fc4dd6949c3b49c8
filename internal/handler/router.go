package handler

import (
	"net/http"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/metrics"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	Loans   LoanService
	Users   UserService
	Health  *HealthHandler
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// NewRouter wires every route of the API
func NewRouter(deps RouterDeps) *mux.Router {
	mw := NewMiddleware(deps.Users, deps.Loans, deps.Log)
	customer := NewCustomerHandler(deps.Loans, deps.Log)
	admin := NewAdminHandler(deps.Loans, deps.Users, deps.Log)
	loans := NewLoanHandler(deps.Loans, deps.Log)
	jobs := NewJobsHandler(deps.Loans, deps.Log)

	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(deps.Log))
	router.Use(response.CORSMiddleware)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware)
		router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Health check
	if deps.Health != nil {
		router.HandleFunc("/health", deps.Health.Health).Methods(http.MethodGet)
		router.HandleFunc("/health/ready", deps.Health.Ready).Methods(http.MethodGet)
	}

	customerRoutes := router.PathPrefix("/customer").Subrouter()
	customerRoutes.Use(mw.Authenticate, mw.RequireRole(domain.RoleCustomer))
	customerRoutes.HandleFunc("/details", customer.Details).Methods(http.MethodGet)
	customerRoutes.HandleFunc("/request-loan", customer.RequestLoan).Methods(http.MethodPost)
	customerRoutes.HandleFunc("/repay-loan", customer.RepayLoan).Methods(http.MethodPost)

	adminRoutes := router.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(mw.Authenticate, mw.RequireRole(domain.RoleAdmin))
	adminRoutes.HandleFunc("/loan-requests", admin.PendingLoans).Methods(http.MethodGet)
	adminRoutes.HandleFunc("/verify-loan", admin.VerifyLoan).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/create-customer", admin.CreateCustomer).Methods(http.MethodPost)

	loanRoutes := router.PathPrefix("/loans").Subrouter()
	loanRoutes.Use(mw.Authenticate)
	loanRoutes.HandleFunc("/all", loans.All).Methods(http.MethodGet)
	loanRoutes.Handle("/{id}/detail", mw.LoanAccess(http.HandlerFunc(loans.Detail))).Methods(http.MethodGet)
	loanRoutes.Handle("/{id}/payment-schedule", mw.LoanAccess(http.HandlerFunc(loans.PaymentSchedule))).Methods(http.MethodGet)

	activityRoutes := router.PathPrefix("/activity").Subrouter()
	activityRoutes.Use(mw.Authenticate)
	activityRoutes.Handle("/{id}/loan", mw.LoanAccess(http.HandlerFunc(loans.LoanActivity))).Methods(http.MethodGet)
	activityRoutes.Handle("/{id}/repayment", mw.LoanAccess(http.HandlerFunc(loans.RepaymentActivity))).Methods(http.MethodGet)

	jobRoutes := router.PathPrefix("/jobs").Subrouter()
	jobRoutes.Use(mw.Authenticate, mw.RequireRole(domain.RoleAdmin))
	jobRoutes.HandleFunc("/check-for-late-payments", jobs.CheckForLatePayments).Methods(http.MethodPost)

	return router
}
