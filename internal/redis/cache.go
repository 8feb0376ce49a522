package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore caches HTTP responses and status snapshots in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	ResponseCacheTTL = 24 * time.Hour
	StatusCacheTTL   = 5 * time.Second // status changes with every tap
)

// Key prefixes
const (
	responseCachePrefix = "idempotency:"
	statusCacheKey      = "cache:status"
)

// CachedResponse is a stored response for an idempotent request.
type CachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// GetResponse retrieves the response stored under an idempotency key.
// Returns nil on a cache miss.
func (s *CacheStore) GetResponse(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.client.Get(ctx, responseCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetResponse stores a response under an idempotency key.
func (s *CacheStore) SetResponse(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, responseCachePrefix+key, data, ResponseCacheTTL).Err()
}

// GetStatus retrieves the cached status snapshot. Returns nil on a miss.
func (s *CacheStore) GetStatus(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, statusCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// SetStatus stores a status snapshot.
func (s *CacheStore) SetStatus(ctx context.Context, body []byte) error {
	return s.client.Set(ctx, statusCacheKey, body, StatusCacheTTL).Err()
}

// InvalidateStatus drops the status snapshot after a pipeline run.
func (s *CacheStore) InvalidateStatus(ctx context.Context) error {
	return s.client.Del(ctx, statusCacheKey).Err()
}
