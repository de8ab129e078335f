// Package bridge is the local transport's request interceptor: a loopback
// HTTP listener that routes /preview/<port>/... to the dev server registered
// for that preview port.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned before Init has bound the listener.
	ErrNotStarted = errors.New("bridge not initialized")
	// ErrPortInUse is returned when a port already has a registered server.
	ErrPortInUse = errors.New("preview port already registered")
)

// Bridge routes preview requests to registered handlers.
type Bridge struct {
	addr    string
	prefix  string
	logger  *logging.Logger
	metrics *monitoring.Metrics
	engine  *gin.Engine

	mu      sync.RWMutex
	servers map[int]http.Handler
	srv     *http.Server
	baseURL string
}

// New creates a bridge. Nothing listens until Init.
func New(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	prefix := "/" + strings.Trim(cfg.Bridge.Prefix, "/")

	b := &Bridge{
		addr:    cfg.Bridge.Addr,
		prefix:  prefix,
		logger:  logger.Named("bridge"),
		metrics: metrics,
		servers: make(map[int]http.Handler),
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.Recovery(b.logger))
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.RateLimit(cfg.RateLimit))

	engine.GET("/healthz", b.health)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	engine.GET(prefix+"/:port", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, c.Request.URL.Path+"/")
	})
	engine.Any(prefix+"/:port/*path", b.route)

	b.engine = engine
	return b
}

// Init binds the listener and starts serving. Calling it again is a no-op.
func (b *Bridge) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.srv != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", b.addr)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", b.addr, err)
	}

	srv := &http.Server{
		Handler:           b.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	b.srv = srv
	b.baseURL = "http://" + ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("bridge server stopped", zap.Error(err))
		}
	}()

	b.logger.Info("bridge listening", zap.String("url", b.baseURL), zap.String("prefix", b.prefix))
	return nil
}

// RegisterServer routes a preview port to h.
func (b *Bridge) RegisterServer(h http.Handler, port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid preview port %d", port)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.servers[port]; ok {
		return fmt.Errorf("port %d: %w", port, ErrPortInUse)
	}
	b.servers[port] = h
	b.logger.Debug("server registered", zap.Int("port", port))
	return nil
}

// UnregisterServer removes the route for port. It reports whether one existed.
func (b *Bridge) UnregisterServer(port int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.servers[port]
	delete(b.servers, port)
	if ok {
		b.logger.Debug("server unregistered", zap.Int("port", port))
	}
	return ok
}

// ServerURL returns the externally reachable preview URL for port.
func (b *Bridge) ServerURL(port int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.srv == nil {
		return "", ErrNotStarted
	}
	return fmt.Sprintf("%s%s/%d/", b.baseURL, b.prefix, port), nil
}

// Ports returns the registered preview ports in ascending order.
func (b *Bridge) Ports() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ports := make([]int, 0, len(b.servers))
	for p := range b.servers {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Handler exposes the router.
func (b *Bridge) Handler() http.Handler {
	return b.engine
}

// Close stops the listener and drops every route.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	srv := b.srv
	b.srv = nil
	b.baseURL = ""
	b.servers = make(map[int]http.Handler)
	b.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return nil
}

func (b *Bridge) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ports":  b.Ports(),
	})
}

func (b *Bridge) route(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid preview port"})
		return
	}

	b.mu.RLock()
	h := b.servers[port]
	b.mu.RUnlock()

	if h == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("no dev server on port %d", port)})
		return
	}

	r := c.Request.Clone(c.Request.Context())
	r.URL.Path = c.Param("path")
	r.URL.RawPath = ""
	h.ServeHTTP(c.Writer, r)
}
