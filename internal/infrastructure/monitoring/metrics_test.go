package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two collectors in one process must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordSetup(nil)
	a.RecordSetup(errors.New("boom"))
	b.RecordSetup(nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.SetupsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.SetupsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.SetupsTotal.WithLabelValues("success")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInstall(nil, 0)
		m.RecordDevServerStart("local", nil)
		m.SetSandboxPending(3)
		m.IncSync()
	})
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "200")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "devcontainer_bridge_requests_total")
}

func TestTimerObserves(t *testing.T) {
	metrics := NewMetrics()
	timer := NewTimer(metrics.InstallDuration)
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.InstallDuration))
}
