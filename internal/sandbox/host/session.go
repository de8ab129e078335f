package host

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/devserver"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"go.uber.org/zap"
)

type session struct {
	id     id.ConnID
	port   sandbox.Port
	fs     *vfs.MemFS
	server devserver.Server
	logger *logging.Logger
}

// Serve runs the protocol on port until the peer disconnects or ctx ends.
// Messages are handled one at a time, in arrival order.
func (h *Host) Serve(ctx context.Context, port sandbox.Port) error {
	s := &session{
		id:   id.NewConnID(),
		port: port,
		fs:   vfs.NewMemFS(h.workDir),
	}
	s.logger = h.logger.With(zap.String("conn", s.id.String()))

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	defer h.endSession(s)

	if err := h.post(ctx, s, sandbox.Message{Type: sandbox.TypeReady}); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}
	s.logger.Info("sandbox session started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-port.Inbound():
			if !ok {
				return nil
			}
			if !h.allowed(env.Origin) {
				s.logger.Warn("dropping message from unexpected origin", zap.String("origin", env.Origin))
				continue
			}
			h.metrics.RecordSandboxMessage("in", env.Message.Type)
			h.handle(ctx, s, env.Message)
		}
	}
}

func (h *Host) handle(ctx context.Context, s *session, msg sandbox.Message) {
	switch msg.Type {
	case sandbox.TypeInit:
		h.handleInit(ctx, s, msg)
	case sandbox.TypeStartDevServer:
		h.handleStart(ctx, s, msg)
	case sandbox.TypeSyncFile:
		h.handleSync(s, msg)
	default:
		s.logger.Debug("ignoring message", zap.String("type", msg.Type))
	}
}

func (h *Host) handleInit(ctx context.Context, s *session, msg sandbox.Message) {
	snap, err := vfs.DecodeSnapshot(msg.Snapshot)
	if err != nil {
		h.fail(ctx, s, msg.ID, err)
		return
	}
	if snap.Root != "" && snap.Root != s.fs.WorkDir() {
		s.fs = vfs.NewMemFS(snap.Root)
	}
	if err := s.fs.Restore(snap); err != nil {
		h.fail(ctx, s, msg.ID, err)
		return
	}
	h.console(ctx, s, "info", fmt.Sprintf("restored %d files (%d bytes)", len(snap.Files), snap.Size()))
	_ = h.post(ctx, s, sandbox.Message{Type: sandbox.TypeInitComplete, ID: msg.ID})
}

func (h *Host) handleStart(ctx context.Context, s *session, msg sandbox.Message) {
	if msg.Port <= 0 {
		h.fail(ctx, s, msg.ID, fmt.Errorf("invalid preview port %d", msg.Port))
		return
	}
	h.stopServer(ctx, s)

	srv, err := h.factory(s.fs, devserver.Options{Port: msg.Port, Root: msg.Root})
	if err == nil {
		err = srv.Start(ctx)
	}
	if err != nil {
		h.console(ctx, s, "error", err.Error())
		h.fail(ctx, s, msg.ID, err)
		return
	}

	s.server = srv
	h.register(msg.Port, srv)

	url := fmt.Sprintf("/preview/%d/", msg.Port)
	h.console(ctx, s, "info", "dev server ready at "+url)
	_ = h.post(ctx, s, sandbox.Message{Type: sandbox.TypeStartDevServer, ID: msg.ID, URL: url})
}

func (h *Host) handleSync(s *session, msg sandbox.Message) {
	var err error
	if msg.Deleted() {
		err = s.fs.RemoveAll(msg.Path)
	} else {
		err = s.fs.WriteFile(msg.Path, []byte(*msg.Content))
	}
	if err != nil {
		s.logger.Warn("sync failed", zap.String("path", msg.Path), zap.Error(err))
		return
	}
	if s.server != nil {
		s.server.Notify(msg.Path)
	}
}

func (h *Host) stopServer(ctx context.Context, s *session) {
	if s.server == nil {
		return
	}
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Warn("stop dev server failed", zap.Error(err))
	}
	h.unregister(s.server.Port(), s.server)
	s.server = nil
}

func (h *Host) endSession(s *session) {
	h.stopServer(context.Background(), s)
	_ = s.port.Close()

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	s.logger.Info("sandbox session ended")
}

// fail reports err as a devServerError reply when id is set, or unsolicited.
func (h *Host) fail(ctx context.Context, s *session, reqID int64, err error) {
	s.logger.Warn("sandbox request failed", zap.Int64("id", reqID), zap.Error(err))
	_ = h.post(ctx, s, sandbox.Message{Type: sandbox.TypeDevServerError, ID: reqID, Error: err.Error()})
}

func (h *Host) console(ctx context.Context, s *session, method, line string) {
	_ = h.post(ctx, s, sandbox.Message{Type: sandbox.TypeConsole, Method: method, Args: []string{line}})
}

func (h *Host) post(ctx context.Context, s *session, msg sandbox.Message) error {
	if err := s.port.Post(ctx, msg); err != nil {
		return err
	}
	h.metrics.RecordSandboxMessage("out", msg.Type)
	return nil
}
