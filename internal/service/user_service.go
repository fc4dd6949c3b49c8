package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"

	"github.com/sirupsen/logrus"
)

type UserService struct {
	users repository.UserRepository
	log   logrus.FieldLogger
}

func NewUserService(users repository.UserRepository, log logrus.FieldLogger) *UserService {
	return &UserService{users: users, log: log}
}

// GetByUsername resolves the caller identity used by the role guards
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapUserNotFound(username)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return user, nil
}

// CreateCustomer registers a new CUSTOMER. Usernames are unique.
func (s *UserService) CreateCustomer(ctx context.Context, request *domain.CreateCustomerRequest) (*domain.User, error) {
	username := strings.TrimSpace(request.Username)
	if username == "" {
		return nil, customError.WrapValidation("Username is required", request)
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil, customError.WrapUserAlreadyExists(username)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	user := &domain.User{
		ID:        uuid.New(),
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Username:  username,
		Role:      domain.RoleCustomer,
		CreatedAt: time.Now(),
	}
	// The lookup above is only a fast path; the insert is what enforces uniqueness.
	if err := s.users.Create(ctx, user); errors.Is(err, repository.ErrDuplicate) {
		return nil, customError.WrapUserAlreadyExists(username)
	} else if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": username,
	}).Info("customer created")

	return user, nil
}
