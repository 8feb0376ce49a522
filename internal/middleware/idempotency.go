package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalRedis "onisai/internal/redis"
)

const idempotencyHeader = "Idempotency-Key"

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a POST carrying an
// Idempotency-Key that was already seen on the same route, so a retried
// Shortcut tap does not stamp twice. A nil cache disables it.
func IdempotencyMiddleware(cache internalRedis.ResponseCache, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		header := c.GetHeader(idempotencyHeader)
		if header == "" {
			c.Next()
			return
		}
		key := cacheKey(c.Request, header)

		ctx := c.Request.Context()
		cached, err := cache.GetResponse(ctx, key)
		if err != nil {
			// Redis error - proceed without idempotency.
			logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if cached != nil {
			contentType := cached.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			c.Header("Idempotent-Replay", "true")
			c.Data(cached.StatusCode, contentType, cached.Body)
			c.Abort()
			return
		}

		w := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		// Server errors are not replayed; the client may retry them.
		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}
		resp := &internalRedis.CachedResponse{
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := cache.SetResponse(ctx, key, resp); err != nil {
			logger.Warn("failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

// cacheKey scopes a client key to the request route, so reusing a key on
// another endpoint never replays a foreign response.
func cacheKey(r *http.Request, header string) string {
	return r.Method + " " + r.URL.Path + " " + header
}
