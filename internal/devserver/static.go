package devserver

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/manifest"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HMRPath is the live-reload websocket endpoint.
const HMRPath = "/__hmr"

const reloadClient = `<script type="module">` +
	`const s=new WebSocket(location.href.replace(/^http/,"ws").replace(/\/[^/]*$/,"/__hmr"));` +
	`s.onmessage=()=>location.reload();</script>`

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin preview only
	},
}

// Static serves files straight from the filesystem with SPA fallback.
type Static struct {
	fs     vfs.FileSystem
	port   int
	root   string
	logger *logging.Logger

	mu      sync.RWMutex
	running bool
	target  HMRTarget
	sockets map[*SocketTarget]struct{}
}

// NewFactory returns a Factory producing Static servers.
func NewFactory(logger *logging.Logger) Factory {
	return func(fs vfs.FileSystem, opts Options) (Server, error) {
		return NewStatic(fs, opts, logger), nil
	}
}

// NewStatic creates a stopped Static server.
func NewStatic(fs vfs.FileSystem, opts Options, logger *logging.Logger) *Static {
	if logger == nil {
		logger = logging.NewNop()
	}
	root := fs.WorkDir()
	if opts.Root != "" {
		root = vfs.Normalize(fs.WorkDir(), opts.Root)
	}
	return &Static{
		fs:      fs,
		port:    opts.Port,
		root:    root,
		logger:  logger.Named("devserver").With(zap.Int("port", opts.Port)),
		sockets: make(map[*SocketTarget]struct{}),
	}
}

// Port returns the preview port.
func (s *Static) Port() int { return s.port }

// Start verifies the project can be served: the root exists and every
// declared dependency is present under node_modules.
func (s *Static) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.fs.Exists(s.root) {
		return fmt.Errorf("root directory %s does not exist", s.root)
	}
	if err := s.checkDependencies(); err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("dev server started", zap.String("root", s.root))
	return nil
}

func (s *Static) checkDependencies() error {
	data, err := s.fs.ReadFile(path.Join(s.root, manifest.FileName))
	if err != nil {
		return nil
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("SyntaxError: %s: %v", manifest.FileName, err)
	}
	for _, dep := range m.AllDependencies() {
		if dep.Dev {
			continue
		}
		pkg := path.Join(s.root, "node_modules", dep.Name, manifest.FileName)
		if !s.fs.Exists(pkg) {
			return fmt.Errorf("Error: Cannot find module '%s'", dep.Name)
		}
	}
	return nil
}

// Stop disconnects live-reload clients and stops serving.
func (s *Static) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	sockets := s.sockets
	s.sockets = make(map[*SocketTarget]struct{})
	s.mu.Unlock()

	for sock := range sockets {
		_ = sock.Close()
	}
	s.logger.Info("dev server stopped")
	return nil
}

// SetHMRTarget replaces the explicit live-reload target.
func (s *Static) SetHMRTarget(target HMRTarget) {
	s.mu.Lock()
	s.target = target
	s.mu.Unlock()
}

// Notify forwards a change to the HMR target and every connected client.
func (s *Static) Notify(p string) {
	rel := vfs.Rel(s.root, p)

	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return
	}
	target := s.target
	sockets := make([]*SocketTarget, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.RUnlock()

	if target != nil {
		if err := target.Reload(rel); err != nil {
			s.logger.Warn("hmr target reload failed", zap.String("path", rel), zap.Error(err))
		}
	}
	for _, sock := range sockets {
		if err := sock.Reload(rel); err != nil {
			s.dropSocket(sock)
		}
	}
}

// ServeHTTP serves a file relative to the server root.
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}

	if r.URL.Path == HMRPath {
		s.serveHMR(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, content, err := s.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if path.Base(name) == "index.html" {
		content = injectReloadClient(content)
	}
	w.Header().Set("Content-Type", contentType(name, content))
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(content)
}

// resolve maps a URL path to a file. Directories resolve to index.html and
// extensionless misses fall back to the root index.html.
func (s *Static) resolve(urlPath string) (string, []byte, error) {
	name := vfs.Normalize(s.root, urlPath)

	if content, err := s.fs.ReadFile(name); err == nil {
		return name, content, nil
	}
	index := path.Join(name, "index.html")
	if content, err := s.fs.ReadFile(index); err == nil {
		return index, content, nil
	}
	if path.Ext(name) == "" {
		index = path.Join(s.root, "index.html")
		if content, err := s.fs.ReadFile(index); err == nil {
			return index, content, nil
		}
	}
	return "", nil, vfs.ErrNotExist
}

func (s *Static) serveHMR(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("hmr upgrade failed", zap.Error(err))
		return
	}
	sock := NewSocketTarget(conn)

	s.mu.Lock()
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()

	go func() {
		sock.wait()
		s.dropSocket(sock)
	}()
}

func (s *Static) dropSocket(sock *SocketTarget) {
	s.mu.Lock()
	delete(s.sockets, sock)
	s.mu.Unlock()
	_ = sock.Close()
}

// Clients returns the number of connected live-reload clients.
func (s *Static) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sockets)
}

func contentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	switch path.Ext(name) {
	case ".jsx", ".tsx", ".ts", ".mjs":
		return "text/javascript; charset=utf-8"
	}
	return mimetype.Detect(content).String()
}

func injectReloadClient(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(append([]byte{}, doc...), reloadClient...)
	}
	out := make([]byte, 0, len(doc)+len(reloadClient))
	out = append(out, doc[:i]...)
	out = append(out, reloadClient...)
	return append(out, doc[i:]...)
}
