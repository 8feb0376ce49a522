package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquirePipelineLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleasePipelineLock(ctx context.Context, key, token string) error
}

// ResponseCache defines the interface for idempotent response storage.
type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (*CachedResponse, error)
	SetResponse(ctx context.Context, key string, resp *CachedResponse) error
}

// StatusCache defines the interface for the status snapshot cache.
type StatusCache interface {
	GetStatus(ctx context.Context) ([]byte, error)
	SetStatus(ctx context.Context, body []byte) error
	InvalidateStatus(ctx context.Context) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface = (*LockStore)(nil)
	_ ResponseCache      = (*CacheStore)(nil)
	_ StatusCache        = (*CacheStore)(nil)
)
