// Package bootstrap prepares a fresh store before the process serves traffic.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"

	"github.com/sirupsen/logrus"
)

// SeedUsers creates every seed user that does not exist yet. Running it
// again is a no-op.
func SeedUsers(ctx context.Context, users repository.UserRepository, seeds []config.SeedUser, log logrus.FieldLogger) (int, error) {
	created := 0
	for _, seed := range seeds {
		_, err := users.GetByUsername(ctx, seed.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, fmt.Errorf("lookup seed user %s: %w", seed.Username, err)
		}

		user := &domain.User{
			ID:        uuid.New(),
			FirstName: seed.Username,
			Username:  seed.Username,
			Role:      seed.Role,
			CreatedAt: time.Now(),
		}
		err = users.Create(ctx, user)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create seed user %s: %w", seed.Username, err)
		}

		log.WithFields(logrus.Fields{
			"username": seed.Username,
			"role":     seed.Role,
		}).Info("seed user created")
		created++
	}
	return created, nil
}
