package bootstrap

import (
	"context"
	"fmt"

	"github.com/segyhp/lending-engine/internal/cache"
	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/repository"
	"github.com/segyhp/lending-engine/internal/repository/memory"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OpenStore connects the store selected by STORE_DRIVER and, for postgres,
// applies pending migrations. The returned func releases the connection pool.
func OpenStore(cfg *config.Config, log logrus.FieldLogger) (repository.Store, func(), error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return memory.New(), func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if cfg.Database.Migrate {
		if err := repository.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}

	closer := func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("closing database")
		}
	}
	return repository.NewPostgresStore(db, cfg.Database.TxRetries), closer, nil
}

// OpenCache returns the redis-backed loan cache, or a no-op cache with a nil
// client when redis does not answer.
func OpenCache(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (cache.LoanCache, *redis.Client) {
	if cfg.Redis.Host == "" {
		return cache.Noop{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Health.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, loan cache disabled")
		_ = client.Close()
		return cache.Noop{}, nil
	}

	return cache.NewRedisLoanCache(client, cfg.Redis.CacheTTL), client
}
