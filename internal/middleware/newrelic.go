package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the nrgin transaction of a request with the
// trigger source and records handler errors. It must run after
// nrgin.Middleware; without a transaction it does nothing.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		txn.AddAttribute("trigger", "http")
		if key := c.GetHeader(idempotencyHeader); key != "" {
			txn.AddAttribute("idempotencyKey", key)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
