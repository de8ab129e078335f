package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientTTL is how long an idle client's bucket is kept.
const clientTTL = 5 * time.Minute

// RateLimit creates a per-IP rate limiting middleware. Disabled configs pass
// every request through.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > clientTTL {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > clientTTL {
					delete(clients, k)
				}
			}
			lastSweep = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
