package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware creates a Gin middleware for bridge request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		metrics.RecordHTTPRequest(c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures operation duration into a histogram
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func NewTimer(observer prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: observer,
	}
}

// Stop records and returns the elapsed duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(elapsed.Seconds())
	}
	return elapsed
}
