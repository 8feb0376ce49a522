package app

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"onisai/internal/config"
)

// NewRedisClient connects to Redis with optional New Relic instrumentation.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if nrApp != nil {
		client.AddHook(nrRedisHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// nrRedisHook records each Redis command as a datastore segment of the
// transaction in the command's context.
type nrRedisHook struct{}

func (nrRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (nrRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		defer datastoreSegment(ctx, cmd.Name()).End()
		return next(ctx, cmd)
	}
}

func (nrRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		defer datastoreSegment(ctx, "pipeline").End()
		return next(ctx, cmds)
	}
}

// datastoreSegment is nil-safe: without a transaction End is a no-op.
func datastoreSegment(ctx context.Context, op string) *newrelic.DatastoreSegment {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  op,
		Collection: "onisai",
	}
}
