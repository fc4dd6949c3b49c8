package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/handler"
	"github.com/segyhp/lending-engine/internal/mocks"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	adminUser = &domain.User{ID: uuid.New(), Username: "admin", Role: domain.RoleAdmin}
	alice     = &domain.User{ID: uuid.New(), Username: "alice", Role: domain.RoleCustomer}
	bob       = &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleCustomer}
)

type fixture struct {
	loans  *mocks.MockLoanService
	users  *mocks.MockUserService
	router *mux.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loans: new(mocks.MockLoanService),
		users: new(mocks.MockUserService),
	}

	for _, u := range []*domain.User{adminUser, alice, bob} {
		f.users.On("GetByUsername", mock.Anything, u.Username).Return(u, nil).Maybe()
	}
	f.users.On("GetByUsername", mock.Anything, mock.Anything).Return(nil, customError.WrapUserNotFound("ghost")).Maybe()

	f.router = handler.NewRouter(handler.RouterDeps{
		Loans: f.loans,
		Users: f.users,
		Log:   logger.Discard(),
	})
	return f
}

func (f *fixture) do(method, path, username string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set(handler.UsernameHeader, username)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	wrapper := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapper))
	assert.True(t, wrapper.Success)
	require.NoError(t, json.Unmarshal(wrapper.Data, dst))
}

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		username     string
		expectedBody string
	}{
		{"missing header", http.MethodGet, "/loans/all", "", "No Username Provided"},
		{"unknown user", http.MethodGet, "/loans/all", "ghost", "Invalid Username"},
		{"customer on admin route", http.MethodGet, "/admin/loan-requests", "alice", "Invalid Admin"},
		{"customer runs sweep", http.MethodPost, "/jobs/check-for-late-payments", "alice", "Invalid Admin"},
		{"admin on customer route", http.MethodPost, "/customer/request-loan", "admin", "Invalid Customer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.do(tt.method, tt.path, tt.username, nil)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			f.loans.AssertExpectations(t)
		})
	}
}

func TestCustomerHandler_RequestLoan(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success",
			body: map[string]interface{}{"amount": 3000, "terms": 3},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("RequestLoan", mock.Anything, mock.MatchedBy(func(req *domain.CreateLoanRequest) bool {
					return req.Amount.Equal(decimal.NewFromInt(3000)) && req.Terms == 3 && req.TermType == ""
				}), alice.ID).Return(&domain.Loan{
					ID:          uuid.New(),
					OwnerID:     alice.ID,
					TotalAmount: decimal.NewFromInt(3000),
					Status:      domain.LoanStatusPending,
					TermType:    domain.TermTypeWeekly,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"PENDING"`,
		},
		{
			name:           "invalid JSON payload",
			body:           "invalid json",
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Invalid JSON payload",
		},
		{
			name:           "missing amount",
			body:           map[string]interface{}{"terms": 3},
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name:           "zero terms",
			body:           map[string]interface{}{"amount": 100, "terms": 0},
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name:           "unknown term type",
			body:           map[string]interface{}{"amount": 100, "terms": 1, "termType": "DAILY"},
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name: "service failure is not leaked",
			body: map[string]interface{}{"amount": 100, "terms": 1},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("RequestLoan", mock.Anything, mock.Anything, alice.ID).
					Return(nil, customError.WrapDatabaseError(errors.New("pq: too many connections"))).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f.loans)

			w := f.do(http.MethodPost, "/customer/request-loan", "alice", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			assert.NotContains(t, w.Body.String(), "too many connections")
			f.loans.AssertExpectations(t)
		})
	}
}

func TestCustomerHandler_RequestLoan_ValidationCarriesPayload(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/customer/request-loan", "alice", map[string]interface{}{"amount": -5, "terms": 2})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, customError.ErrCodeValidation, body.Code)
	assert.Equal(t, float64(2), body.Details["terms"])
}

func TestCustomerHandler_RepayLoan(t *testing.T) {
	loanID := uuid.New()
	ownLoan := &domain.Loan{ID: loanID, OwnerID: alice.ID, Status: domain.LoanStatusApproved}

	tests := []struct {
		name           string
		username       string
		body           interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:     "success",
			username: "alice",
			body:     map[string]interface{}{"loanId": loanID.String(), "amount": "600"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("GetLoanInfo", mock.Anything, loanID).Return(ownLoan, nil).Once()
				m.On("RepayLoan", mock.Anything, loanID, mock.MatchedBy(func(d decimal.Decimal) bool {
					return d.Equal(decimal.NewFromInt(600))
				})).Return(&domain.Loan{ID: loanID, OwnerID: alice.ID, RemainingAmount: decimal.NewFromInt(400)}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"remaining_amount":"400"`,
		},
		{
			name:     "someone else's loan",
			username: "bob",
			body:     map[string]interface{}{"loanId": loanID.String(), "amount": "600"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("GetLoanInfo", mock.Anything, loanID).Return(ownLoan, nil).Once()
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Unauthorized loan access",
		},
		{
			name:     "loan missing",
			username: "alice",
			body:     map[string]interface{}{"loanId": loanID.String(), "amount": "600"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("GetLoanInfo", mock.Anything, loanID).Return(nil, customError.WrapLoanNotFound(loanID.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   customError.ErrCodeLoanNotFound,
		},
		{
			name:     "amount below installment",
			username: "alice",
			body:     map[string]interface{}{"loanId": loanID.String(), "amount": "10"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("GetLoanInfo", mock.Anything, loanID).Return(ownLoan, nil).Once()
				m.On("RepayLoan", mock.Anything, loanID, mock.Anything).
					Return(nil, customError.WrapInvalidAmount("Amount is less than the next repayment schedule amount")).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   customError.ErrCodeInvalidAmount,
		},
		{
			name:           "missing loan id",
			username:       "alice",
			body:           map[string]interface{}{"amount": "10"},
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f.loans)

			w := f.do(http.MethodPost, "/customer/repay-loan", tt.username, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			f.loans.AssertExpectations(t)
		})
	}
}

func TestCustomerHandler_Details(t *testing.T) {
	f := newFixture(t)
	f.loans.On("CustomerSummary", mock.Anything, alice).Return(&domain.CustomerSummary{
		User:       alice,
		TotalLoans: 2,
		TotalPaid:  decimal.NewFromInt(500),
	}, nil).Once()

	w := f.do(http.MethodGet, "/customer/details", "alice", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var summary domain.CustomerSummary
	decodeData(t, w, &summary)
	assert.Equal(t, 2, summary.TotalLoans)
	assert.Equal(t, "alice", summary.User.Username)
	f.loans.AssertExpectations(t)
}

func TestAdminHandler_VerifyLoan(t *testing.T) {
	loanID := uuid.New()

	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "approve",
			body: map[string]interface{}{"loanId": loanID.String(), "status": "APPROVED", "remark": "ok"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("VerifyLoan", mock.Anything, loanID, domain.LoanStatusApproved, "ok", adminUser.ID).
					Return(&domain.Loan{ID: loanID, Status: domain.LoanStatusApproved}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"APPROVED"`,
		},
		{
			name:           "invalid status",
			body:           map[string]interface{}{"loanId": loanID.String(), "status": "PAID"},
			setupMock:      func(m *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name: "already verified",
			body: map[string]interface{}{"loanId": loanID.String(), "status": "REJECTED"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("VerifyLoan", mock.Anything, loanID, domain.LoanStatusRejected, "", adminUser.ID).
					Return(nil, customError.WrapInvalidLoanState(loanID.String(), domain.LoanStatusApproved, "verification")).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   customError.ErrCodeInvalidLoanState,
		},
		{
			name: "unknown loan",
			body: map[string]interface{}{"loanId": loanID.String(), "status": "APPROVED"},
			setupMock: func(m *mocks.MockLoanService) {
				m.On("VerifyLoan", mock.Anything, loanID, domain.LoanStatusApproved, "", adminUser.ID).
					Return(nil, customError.WrapLoanNotFound(loanID.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   customError.ErrCodeLoanNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f.loans)

			w := f.do(http.MethodPost, "/admin/verify-loan", "admin", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			f.loans.AssertExpectations(t)
		})
	}
}

func TestAdminHandler_PendingLoans(t *testing.T) {
	f := newFixture(t)
	pending := []*domain.Loan{{ID: uuid.New(), Status: domain.LoanStatusPending}}
	f.loans.On("GetPendingLoans", mock.Anything).Return(pending, nil).Once()

	w := f.do(http.MethodGet, "/admin/loan-requests", "admin", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var loans []*domain.Loan
	decodeData(t, w, &loans)
	require.Len(t, loans, 1)
	assert.Equal(t, pending[0].ID, loans[0].ID)
}

func TestAdminHandler_CreateCustomer(t *testing.T) {
	f := newFixture(t)
	f.users.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(req *domain.CreateCustomerRequest) bool {
		return req.Username == "carol"
	})).Return(&domain.User{ID: uuid.New(), Username: "carol", Role: domain.RoleCustomer}, nil).Once()
	f.users.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(req *domain.CreateCustomerRequest) bool {
		return req.Username == "alice"
	})).Return(nil, customError.WrapUserAlreadyExists("alice")).Once()

	w := f.do(http.MethodPost, "/admin/create-customer", "admin", map[string]string{
		"firstName": "Carol", "lastName": "Danvers", "username": "carol",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/admin/create-customer", "admin", map[string]string{
		"firstName": "Alice", "lastName": "Liddell", "username": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), customError.ErrCodeUserAlreadyExists)

	w = f.do(http.MethodPost, "/admin/create-customer", "admin", map[string]string{"username": "dave"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.users.AssertExpectations(t)
}

func TestLoanAccess(t *testing.T) {
	loanID := uuid.New()
	aliceLoan := &domain.Loan{ID: loanID, OwnerID: alice.ID, Status: domain.LoanStatusApproved}

	tests := []struct {
		name           string
		username       string
		path           string
		found          bool
		expectedStatus int
	}{
		{"owner sees detail", "alice", "/loans/" + loanID.String() + "/detail", true, http.StatusOK},
		{"admin sees any loan", "admin", "/loans/" + loanID.String() + "/detail", true, http.StatusOK},
		{"other customer gets not found", "bob", "/loans/" + loanID.String() + "/detail", true, http.StatusNotFound},
		{"other customer activity is masked", "bob", "/activity/" + loanID.String() + "/loan", true, http.StatusNotFound},
		{"missing loan", "alice", "/loans/" + loanID.String() + "/detail", false, http.StatusNotFound},
		{"malformed id", "alice", "/loans/not-a-uuid/detail", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.found {
				f.loans.On("GetLoanInfo", mock.Anything, loanID).Return(aliceLoan, nil).Once()
			} else {
				f.loans.On("GetLoanInfo", mock.Anything, loanID).Return(nil, customError.WrapLoanNotFound(loanID.String())).Maybe()
			}

			w := f.do(http.MethodGet, tt.path, tt.username, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusNotFound {
				assert.Contains(t, w.Body.String(), "Loan Not Found")
			}
		})
	}
}

func TestLoanHandler_Projections(t *testing.T) {
	loanID := uuid.New()
	aliceLoan := &domain.Loan{ID: loanID, OwnerID: alice.ID}

	f := newFixture(t)
	f.loans.On("GetLoanInfo", mock.Anything, loanID).Return(aliceLoan, nil)
	f.loans.On("GetPaymentSchedule", mock.Anything, loanID).Return([]*domain.RepaymentSchedule{
		{ID: uuid.New(), LoanID: loanID, Status: domain.ScheduleStatusApproved},
	}, nil).Once()
	f.loans.On("GetLoanActivity", mock.Anything, loanID).Return([]*domain.LoanActivity{
		{ID: uuid.New(), LoanID: loanID, Activity: domain.LoanActivityRequestCreated},
	}, nil).Once()
	f.loans.On("GetRepaymentActivity", mock.Anything, loanID).Return([]*domain.RepaymentActivity{
		{ID: uuid.New(), LoanID: loanID, Activity: domain.RepaymentActivityScheduleCreated},
	}, nil).Once()

	w := f.do(http.MethodGet, "/loans/"+loanID.String()+"/payment-schedule", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.ScheduleStatusApproved)

	w = f.do(http.MethodGet, "/activity/"+loanID.String()+"/loan", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.LoanActivityRequestCreated)

	w = f.do(http.MethodGet, "/activity/"+loanID.String()+"/repayment", "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), domain.RepaymentActivityScheduleCreated)

	f.loans.AssertExpectations(t)
}

func TestLoanHandler_All(t *testing.T) {
	f := newFixture(t)
	f.loans.On("GetAllLoans", mock.Anything, mock.MatchedBy(func(filter domain.LoanFilter) bool {
		return filter.OwnerID != nil && *filter.OwnerID == alice.ID
	})).Return([]*domain.Loan{}, nil).Once()
	f.loans.On("GetAllLoans", mock.Anything, domain.LoanFilter{}).Return([]*domain.Loan{}, nil).Once()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/loans/all", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/loans/all", "admin", nil).Code)

	f.loans.AssertExpectations(t)
}

func TestJobsHandler_CheckForLatePayments(t *testing.T) {
	f := newFixture(t)
	f.loans.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).Return(2, nil).Once()

	w := f.do(http.MethodPost, "/jobs/check-for-late-payments", "admin", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var result domain.SweepResponse
	decodeData(t, w, &result)
	assert.Equal(t, 2, result.TotalLoansDefaulted)
	f.loans.AssertExpectations(t)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		pinger         stubPinger
		expectedStatus int
	}{
		{"store reachable", stubPinger{}, http.StatusOK},
		{"store down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.pinger, nil, time.Second)

			w := httptest.NewRecorder()
			h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"database"`)
		})
	}
}
