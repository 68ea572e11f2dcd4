package server

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/feeledger/internal/observability/logger"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimited throttles each API key. A limiter error lets the request
// through; the ledger does not depend on the limiter for correctness.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		keyID := c.GetString(contextAPIKeyIDKey)
		if keyID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, keyID)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("rate limit exceeded", zap.String("api_key_id", keyID))
			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter))
			AbortWithError(c, ratelimit.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
