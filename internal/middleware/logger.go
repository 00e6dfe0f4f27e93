package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// ErrorLogger logs the errors handlers attached with c.Error. Clients only
// ever see a generic message for these.
func ErrorLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, err := range c.Errors {
			logger.Error("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", c.Writer.Status(),
				"user_id", UserID(c),
				"error", err.Err,
			)
		}
	}
}
