// Package host runs the isolated origin's side of the sandbox protocol. Each
// connected parent gets its own filesystem and dev server; preview requests
// are served under /preview/<port>/ on the host's own origin.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/config"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Host serves sandbox sessions.
type Host struct {
	workDir string
	origins []string
	addr    string
	factory devserver.Factory
	logger  *logging.Logger
	metrics *monitoring.Metrics
	engine  *gin.Engine

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[id.ConnID]*session
	servers  map[int]devserver.Server
}

// New creates a host. factory may be nil for the default static server.
func New(cfg *config.Config, factory devserver.Factory, logger *logging.Logger, metrics *monitoring.Metrics) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("sandbox-host")
	if factory == nil {
		factory = devserver.NewFactory(logger)
	}

	h := &Host{
		workDir:  cfg.Runtime.WorkDir,
		origins:  cfg.Sandbox.ParentOrigins,
		addr:     cfg.Sandbox.HostAddr,
		factory:  factory,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[id.ConnID]*session),
		servers:  make(map[int]devserver.Server),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.allowed(r.Header.Get("Origin"))
		},
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.Recovery(logger))
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.CORS(middleware.CORSConfigFor(cfg.Sandbox.ParentOrigins)))
	engine.Use(middleware.RateLimit(cfg.RateLimit))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.Sessions()})
	})
	engine.GET("/ws", h.handleSocket)
	engine.Any("/preview/:port/*path", h.handlePreview)

	h.engine = engine
	return h
}

// Handler exposes the host's HTTP surface.
func (h *Host) Handler() http.Handler {
	return h.engine
}

// ListenAndServe serves HTTP on the configured address until ctx is done.
func (h *Host) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("sandbox host listening", zap.String("addr", h.addr), zap.Strings("parents", h.origins))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Sessions returns the number of connected parents.
func (h *Host) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Server returns the dev server registered for a preview port.
func (h *Host) Server(port int) (devserver.Server, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.servers[port]
	return s, ok
}

func (h *Host) allowed(origin string) bool {
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Host) handleSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("sandbox upgrade rejected",
			zap.String("origin", c.GetHeader("Origin")),
			zap.Error(err))
		return
	}
	port := sandbox.NewWSPort(conn, c.GetHeader("Origin"), h.logger)
	if err := h.Serve(c.Request.Context(), port); err != nil {
		h.logger.Debug("sandbox session ended", zap.Error(err))
	}
}

func (h *Host) handlePreview(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid preview port"})
		return
	}
	srv, ok := h.Server(port)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("no dev server on port %d", port)})
		return
	}

	r := c.Request.Clone(c.Request.Context())
	r.URL.Path = c.Param("path")
	r.URL.RawPath = ""
	srv.ServeHTTP(c.Writer, r)
}

func (h *Host) register(port int, srv devserver.Server) {
	h.mu.Lock()
	h.servers[port] = srv
	h.mu.Unlock()
}

func (h *Host) unregister(port int, srv devserver.Server) {
	h.mu.Lock()
	if h.servers[port] == srv {
		delete(h.servers, port)
	}
	h.mu.Unlock()
}
