package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicCaller tags the request's New Relic transaction with the
// authenticated caller. It must run after Authenticate and nrgin.Middleware;
// without an active transaction it does nothing.
func NewRelicCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if txn := nrgin.Transaction(c); txn != nil {
			txn.AddAttribute("user_id", UserID(c))
			txn.AddAttribute("role", string(Role(c)))
		}
		c.Next()

		if txn := nrgin.Transaction(c); txn != nil {
			for _, err := range c.Errors {
				txn.NoticeError(err.Err)
			}
		}
	}
}
