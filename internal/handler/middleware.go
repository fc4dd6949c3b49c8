package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/segyhp/lending-engine/internal/domain"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/response"

	"github.com/sirupsen/logrus"
)

// UsernameHeader identifies the caller on every authenticated route
const UsernameHeader = "username"

type contextKey int

const (
	userKey contextKey = iota
	loanKey
)

// UserFromContext returns the caller resolved by Authenticate
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

func loanFromContext(ctx context.Context) *domain.Loan {
	loan, _ := ctx.Value(loanKey).(*domain.Loan)
	return loan
}

type Middleware struct {
	users UserService
	loans LoanService
	log   logrus.FieldLogger
}

func NewMiddleware(users UserService, loans LoanService, log logrus.FieldLogger) *Middleware {
	return &Middleware{users: users, loans: loans, log: log}
}

// Authenticate resolves the username header to a user record
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.Header.Get(UsernameHeader)
		if username == "" {
			response.Unauthorized(w, "No Username Provided")
			return
		}

		user, err := m.users.GetByUsername(r.Context(), username)
		if errors.Is(err, customError.ErrUserNotFound) {
			response.Unauthorized(w, "Invalid Username")
			return
		}
		if err != nil {
			response.FromError(w, err, m.log)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets through only callers with the given role
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	message := "Invalid Customer"
	if role == domain.RoleAdmin {
		message = "Invalid Admin"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil || user.Role != role {
				response.Unauthorized(w, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoanAccess loads the loan named by the {id} path variable. Admins see every
// loan; a customer asking for someone else's loan gets the same 404 as for a
// loan that does not exist.
func (m *Middleware) LoanAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loanID, err := loanIDFromPath(r)
		if err != nil {
			response.NotFound(w, "Loan Not Found")
			return
		}

		loan, err := m.loans.GetLoanInfo(r.Context(), loanID)
		if errors.Is(err, customError.ErrLoanNotFound) {
			response.NotFound(w, "Loan Not Found")
			return
		}
		if err != nil {
			response.FromError(w, err, m.log)
			return
		}

		user := UserFromContext(r.Context())
		if !user.IsAdmin() && (user == nil || loan.OwnerID != user.ID) {
			response.NotFound(w, "Loan Not Found")
			return
		}

		ctx := context.WithValue(r.Context(), loanKey, loan)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
