package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	internalRedis "onisai/internal/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryCache struct {
	responses map[string]*internalRedis.CachedResponse
}

func (m *memoryCache) GetResponse(ctx context.Context, key string) (*internalRedis.CachedResponse, error) {
	return m.responses[key], nil
}

func (m *memoryCache) SetResponse(ctx context.Context, key string, resp *internalRedis.CachedResponse) error {
	m.responses[key] = resp
	return nil
}

func newRouter(cache internalRedis.ResponseCache, calls *int32, status int) *gin.Engine {
	r := gin.New()
	r.Use(IdempotencyMiddleware(cache, zap.NewNop()))
	for _, path := range []string{"/v1/trips/tap", "/v1/trips/accept"} {
		route := path
		r.POST(route, func(c *gin.Context) {
			n := atomic.AddInt32(calls, 1)
			c.JSON(status, gin.H{"call": n, "route": route})
		})
	}
	return r
}

func post(r http.Handler, key string) *httptest.ResponseRecorder {
	return postTo(r, "/v1/trips/tap", key)
}

func postTo(r http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	var calls int32
	cache := &memoryCache{responses: map[string]*internalRedis.CachedResponse{}}
	r := newRouter(cache, &calls, http.StatusOK)

	first := post(r, "tap-1")
	second := post(r, "tap-1")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	post(r, "tap-2")
	post(r, "")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestIdempotency_KeyIsScopedToRoute(t *testing.T) {
	t.Parallel()

	var calls int32
	cache := &memoryCache{responses: map[string]*internalRedis.CachedResponse{}}
	r := newRouter(cache, &calls, http.StatusOK)

	tap := postTo(r, "/v1/trips/tap", "shared")
	accept := postTo(r, "/v1/trips/accept", "shared")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "the same key on another route runs the handler")
	assert.Empty(t, accept.Header().Get("Idempotent-Replay"))
	assert.Contains(t, tap.Body.String(), "/v1/trips/tap")
	assert.Contains(t, accept.Body.String(), "/v1/trips/accept")
	assert.Len(t, cache.responses, 2)

	again := postTo(r, "/v1/trips/accept", "shared")
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replay"))
	assert.Equal(t, accept.Body.String(), again.Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	t.Parallel()

	var calls int32
	cache := &memoryCache{responses: map[string]*internalRedis.CachedResponse{}}
	r := newRouter(cache, &calls, http.StatusInternalServerError)

	post(r, "k")
	post(r, "k")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Empty(t, cache.responses)
}

func TestIdempotency_NilCacheDisabled(t *testing.T) {
	t.Parallel()

	var calls int32
	r := newRouter(nil, &calls, http.StatusOK)
	post(r, "k")
	post(r, "k")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestZapLogger_LevelByStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(ZapLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/conflict", func(c *gin.Context) { c.Status(http.StatusConflict) })

	for _, path := range []string{"/ok", "/conflict"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "/conflict", entries[1].ContextMap()["path"])
}

func TestNewRelicAttributes_NoTransaction(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(NewRelicAttributes())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
