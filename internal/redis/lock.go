package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const pipelineLockPrefix = "lock:pipeline:"

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePipelineLock attempts to take the pipeline lock named key.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquirePipelineLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, pipelineLockPrefix+key, token, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleasePipelineLock releases the lock if token still owns it.
func (s *LockStore) ReleasePipelineLock(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, s.client, []string{pipelineLockPrefix + key}, token).Err()
}
