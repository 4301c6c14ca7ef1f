package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/regforms/pkg/errors"
	"github.com/charlesng35/regforms/pkg/logger"
	"github.com/charlesng35/regforms/pkg/response"
)

// ErrTooManyRequests is returned once a client exceeds its request budget.
var ErrTooManyRequests = errors.New("RATE_LIMITED", "Too many requests, slow down", http.StatusTooManyRequests)

// RateLimit limits requests per (client IP, route) within a fixed window. A failing
// store lets requests through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP() + "|" + c.FullPath()
		count, resetIn, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			response.Abort(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
