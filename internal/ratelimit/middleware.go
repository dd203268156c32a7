package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware returns a gin middleware that rate limits by client IP. It sits
// in front of authentication, so the key is the caller's network identity
// rather than the signed sender.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if !d.Allowed {
			retry := int(d.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":          "rate_limit_exceeded",
				"retry_after_ms": d.RetryAfter.Milliseconds(),
			})
			return
		}
		c.Next()
	}
}
