package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/ImAdityaa12/storex-backend/internal/config"
	"github.com/ImAdityaa12/storex-backend/internal/db"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

// Dependencies bundles the shared infrastructure both binaries boot from:
// the database pool, the Redis client and the task queue client.
type Dependencies struct {
	Config     *config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Queries    *store.Store
	TaskClient *asynq.Client
}

// Options tunes how the dependency graph is built.
type Options struct {
	AppName string
	// InstrumentRedis attaches otel tracing and metrics hooks to the
	// Redis client.
	InstrumentRedis bool
	// SkipDB leaves the pool nil, for processes that only need Redis and
	// the task queue.
	SkipDB bool
}

// New connects every shared dependency and verifies connectivity before
// returning. On error nothing is left open.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	appName := opts.AppName
	if appName == "" {
		appName = "storex"
	}

	deps := &Dependencies{Config: cfg}

	if !opts.SkipDB {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, appName)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		deps.DB = pool
		deps.Queries = store.New(pool)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if opts.InstrumentRedis {
		if err := redisotel.InstrumentTracing(client); err != nil {
			deps.closeQuietly()
			return nil, fmt.Errorf("instrument redis tracing: %w", err)
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			deps.closeQuietly()
			return nil, fmt.Errorf("instrument redis metrics: %w", err)
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		deps.closeQuietly()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	deps.Redis = client

	taskOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("parse redis url for task queue: %w", err)
	}
	deps.TaskClient = asynq.NewClient(taskOpt)

	return deps, nil
}

// TaskRedisOpt returns the asynq connection option matching the
// configured Redis URL. Used by the worker to build its server.
func (d *Dependencies) TaskRedisOpt() (asynq.RedisConnOpt, error) {
	return asynq.ParseRedisURI(d.Config.RedisURL)
}

// NewLimiterStore builds a rate limiter store backed by the shared Redis
// client.
func (d *Dependencies) NewLimiterStore(prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(d.Redis, limiter.StoreOptions{Prefix: prefix})
}

// Close releases every held connection, logging failures instead of
// returning them since it runs during shutdown.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func (d *Dependencies) closeQuietly() {
	if d.TaskClient != nil {
		_ = d.TaskClient.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
