package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging/logtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(CORSConfigFor([]string{"http://localhost:8787"})))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		allowOrigin string
	}{
		{
			name:        "allowed origin",
			method:      "GET",
			origin:      "http://localhost:8787",
			wantStatus:  http.StatusOK,
			allowOrigin: "http://localhost:8787",
		},
		{
			name:        "preflight",
			method:      "OPTIONS",
			origin:      "http://localhost:8787",
			wantStatus:  http.StatusNoContent,
			allowOrigin: "http://localhost:8787",
		},
		{
			name:       "foreign origin",
			method:     "GET",
			origin:     "http://evil.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no origin header",
			method:     "GET",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.allowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(CORSConfigFor([]string{"*"})))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://anything.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2, Enabled: true}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Buckets are per client.
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Enabled: false}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger, logs := logtest.New(zap.DebugLevel)
	router := setupTestRouter()
	router.Use(Recovery(logger))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic serving request").Len())
}
