package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/sqlite"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/retry"
)

// Backend names a progress store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// ParseBackend normalizes a backend name.
func ParseBackend(s string) Backend {
	return Backend(strings.ToLower(strings.TrimSpace(s)))
}

// IsValid checks if the backend is known.
func (b Backend) IsValid() bool {
	switch b {
	case BackendMemory, BackendRedis, BackendPostgres, BackendSQLite:
		return true
	}
	return false
}

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Backend     Backend
	Redis       redis.Config
	DatabaseURL string
	Pool        postgres.PoolOptions
	SQLitePath  string

	// Migrate applies embedded schema migrations (postgres only).
	Migrate bool

	// Retry bounds connection attempts. Defaults to retry.ConnectRetrier.
	Retry []retry.Option
}

// Open connects the configured backend, retrying transient failures.
func Open(ctx context.Context, opts OpenOptions, log *logger.Logger) (progress.Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("store"), logger.String("backend", string(opts.Backend)))

	retryOpts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("store connection failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	}, opts.Retry...)
	retrier := retry.ConnectRetrier(retryOpts...)

	var store progress.Store
	err := retrier.Do(ctx, func(ctx context.Context) error {
		s, err := open(ctx, opts)
		if err != nil {
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("progress store ready")
	return store, nil
}

func open(ctx context.Context, opts OpenOptions) (progress.Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return memory.NewStore(), nil

	case BackendRedis:
		return redis.NewStore(ctx, opts.Redis)

	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, retry.Permanent(fmt.Errorf("persistence: DATABASE_URL is required for the postgres backend"))
		}
		conn, err := postgres.NewConnectionFromURL(ctx, opts.DatabaseURL, opts.Pool)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, retry.Permanent(err)
			}
		}
		return postgres.NewKVStore(conn), nil

	case BackendSQLite:
		s, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return s, nil
	}

	return nil, retry.Permanent(fmt.Errorf("persistence: unknown store backend %q", opts.Backend))
}
