package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenLockStore is the Redis side of the lock.
type TokenLockStore interface {
	AcquirePipelineLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleasePipelineLock(ctx context.Context, key, token string) error
}

// RedisBackend locks through a SetNX key with a TTL.
type RedisBackend struct {
	store TokenLockStore
	key   string
	token string
	ttl   time.Duration
}

// NewRedisBackend creates a Redis lock backend for key.
func NewRedisBackend(store TokenLockStore, key string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{store: store, key: key, token: uuid.NewString(), ttl: ttl}
}

func (b *RedisBackend) TryAcquire(ctx context.Context) (bool, error) {
	return b.store.AcquirePipelineLock(ctx, b.key, b.token, b.ttl)
}

func (b *RedisBackend) Release(ctx context.Context) error {
	return b.store.ReleasePipelineLock(ctx, b.key, b.token)
}
