package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CacheInvalidator drops every cached entry under a key prefix.
type CacheInvalidator interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheInvalidation flushes cached dashboard snapshots after any
// successful write request, so the next dashboard read rebuilds from
// the database. Reads and failed writes leave the cache alone. A nil
// invalidator disables the middleware.
func CacheInvalidation(cache CacheInvalidator, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if cache == nil {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if c.Writer.Status() >= http.StatusMultipleChoices {
			return
		}
		if err := cache.DeletePrefix(c.Request.Context(), prefix); err != nil {
			logger.Warn("cache invalidation failed",
				zap.String("prefix", prefix),
				zap.Error(err))
		}
	}
}
