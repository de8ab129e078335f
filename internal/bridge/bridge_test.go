package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	return cfg
}

func echoPath(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+":"+r.URL.Path)
	})
}

func serve(b *Bridge, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoutesByPort(t *testing.T) {
	b := New(testConfig(), nil, nil)
	require.NoError(t, b.RegisterServer(echoPath("a"), 3001))
	require.NoError(t, b.RegisterServer(echoPath("b"), 3002))

	rec := serve(b, "/preview/3001/src/main.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a:/src/main.js", rec.Body.String())

	rec = serve(b, "/preview/3002/")
	assert.Equal(t, "b:/", rec.Body.String())

	rec = serve(b, "/preview/3003/")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = serve(b, "/preview/nope/")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(b, "/preview/3001")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/preview/3001/", rec.Header().Get("Location"))

	assert.Equal(t, []int{3001, 3002}, b.Ports())
}

func TestRegisterRejectsTakenPort(t *testing.T) {
	b := New(testConfig(), nil, nil)
	require.NoError(t, b.RegisterServer(echoPath("a"), 3001))

	err := b.RegisterServer(echoPath("b"), 3001)
	assert.ErrorIs(t, err, ErrPortInUse)

	assert.True(t, b.UnregisterServer(3001))
	assert.False(t, b.UnregisterServer(3001))
	assert.NoError(t, b.RegisterServer(echoPath("b"), 3001))

	assert.Error(t, b.RegisterServer(echoPath("c"), 0))
}

func TestInitIsIdempotentAndServes(t *testing.T) {
	b := New(testConfig(), nil, monitoring.NewMetrics())
	ctx := context.Background()

	_, err := b.ServerURL(3001)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, b.Init(ctx))
	first, err := b.ServerURL(3001)
	require.NoError(t, err)
	require.NoError(t, b.Init(ctx))
	second, err := b.ServerURL(3001)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Regexp(t, `^http://127\.0\.0\.1:\d+/preview/3001/$`, first)

	require.NoError(t, b.RegisterServer(echoPath("live"), 3001))
	resp, err := http.Get(first + "index.html")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "live:/index.html", string(body))

	rec := serve(b, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devcontainer_bridge_requests_total")

	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
	assert.Empty(t, b.Ports())
}
