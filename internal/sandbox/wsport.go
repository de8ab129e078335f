package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	maxMessageLen = 64 << 20
)

// WSPort is a Port over a gorilla websocket connection.
type WSPort struct {
	conn   *websocket.Conn
	origin string
	logger *logging.Logger

	writeMu sync.Mutex
	in      chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a sandbox websocket endpoint. localOrigin is sent as the
// Origin header; inbound messages are stamped with the origin of rawURL.
func Dial(ctx context.Context, rawURL, localOrigin string, logger *logging.Logger) (*WSPort, error) {
	remote, err := OriginOf(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if localOrigin != "" {
		header.Set("Origin", localOrigin)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial sandbox %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial sandbox %s: %w", rawURL, err)
	}
	return NewWSPort(conn, remote, logger), nil
}

// NewWSPort wraps an established connection. remoteOrigin tags every inbound
// envelope.
func NewWSPort(conn *websocket.Conn, remoteOrigin string, logger *logging.Logger) *WSPort {
	if logger == nil {
		logger = logging.NewNop()
	}
	conn.SetReadLimit(maxMessageLen)
	p := &WSPort{
		conn:   conn,
		origin: remoteOrigin,
		logger: logger,
		in:     make(chan Envelope, pipeBuffer),
		done:   make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *WSPort) readLoop() {
	defer close(p.in)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-p.done:
				default:
					p.logger.Debug("sandbox socket read ended", zap.Error(err))
				}
			}
			return
		}
		msg, err := Decode(data)
		if err != nil {
			p.logger.Warn("dropping malformed sandbox message", zap.Error(err))
			continue
		}
		select {
		case p.in <- Envelope{Origin: p.origin, Message: msg}:
		case <-p.done:
			return
		}
	}
}

// Post writes one message. Writes are serialized.
func (p *WSPort) Post(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.conn.SetWriteDeadline(deadline)
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Inbound returns the inbound message stream.
func (p *WSPort) Inbound() <-chan Envelope {
	return p.in
}

// Close sends a close frame and tears down the connection.
func (p *WSPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		err = p.conn.Close()
	})
	return err
}
