package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"onisai/internal/handler"
	"onisai/internal/middleware"
	internalRedis "onisai/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PipelineHandler *handler.PipelineHandler
	ResponseCache   internalRedis.ResponseCache
	NewRelicApp     *newrelic.Application
	Logger          *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.ZapLogger(deps.Logger))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.ResponseCache, deps.Logger))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := deps.PipelineHandler
	v1 := router.Group("/v1")
	{
		v1.POST("/offers", h.SubmitOffer)
		v1.POST("/recover", h.Recover)
		v1.GET("/status", h.Status)
		v1.GET("/zones/:kind", h.Zones)

		// Trip lifecycle stamps.
		trips := v1.Group("/trips")
		{
			trips.POST("/accept", h.Accept)
			trips.POST("/complete", h.Complete)
			trips.POST("/decline", h.Decline)
			trips.POST("/tap", h.Tap)
		}

		// Guardrail review.
		guardrails := v1.Group("/guardrails")
		{
			guardrails.GET("", h.Guardrails)
			guardrails.POST("/:zone/clear", h.ClearGuardrail)
		}
	}

	return router
}
