package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a request when no other timeout is given.
const DefaultRequestTimeout = 30 * time.Second

var (
	// ErrRequestTimeout is returned when no reply arrives in time.
	ErrRequestTimeout = errors.New("sandbox request timed out")
	// ErrChannelClosed is returned for requests on, or pending at, a closed channel.
	ErrChannelClosed = errors.New("sandbox channel closed")
)

// RemoteError is a devServerError reported by the sandbox.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

var lastID atomic.Int64

// NextID returns a process-unique, strictly increasing request id.
func NextID() int64 {
	return lastID.Add(1)
}

// Options configures a Channel.
type Options struct {
	// Origin is the only origin whose messages are accepted. Empty accepts all.
	Origin         string
	RequestTimeout time.Duration
	// OnConsole receives forwarded console output.
	OnConsole func(method, line string)
	// OnDevServerError receives unsolicited devServerError messages.
	OnDevServerError func(msg string)
	Logger           *logging.Logger
	Metrics          *monitoring.Metrics
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout      time.Duration
	abortOnError bool
}

// WithTimeout overrides the channel's request timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(c *requestConfig) { c.timeout = d }
}

// AbortOnError makes an unsolicited devServerError reject the request.
func AbortOnError() RequestOption {
	return func(c *requestConfig) { c.abortOnError = true }
}

type result struct {
	msg Message
	err error
}

type waiter struct {
	kind         string
	abortOnError bool
	ch           chan result
}

// Channel correlates requests and replies over a Port.
type Channel struct {
	port    Port
	opts    Options
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	pending   map[int64]*waiter
	expecting map[string][]chan Message
	unclaimed map[string]Message
	closed    bool

	done chan struct{}
}

// NewChannel starts dispatching inbound messages from port.
func NewChannel(port Port, opts Options) *Channel {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	c := &Channel{
		port:      port,
		opts:      opts,
		logger:    opts.Logger.Named("sandbox"),
		metrics:   opts.Metrics,
		pending:   make(map[int64]*waiter),
		expecting: make(map[string][]chan Message),
		unclaimed: make(map[string]Message),
		done:      make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Request sends msg with a fresh id and waits for the matching reply.
func (c *Channel) Request(ctx context.Context, msg Message, opts ...RequestOption) (Message, error) {
	cfg := requestConfig{timeout: c.opts.RequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	msg.ID = NextID()
	w := &waiter{kind: msg.Type, abortOnError: cfg.abortOnError, ch: make(chan result, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrChannelClosed
	}
	c.pending[msg.ID] = w
	n := len(c.pending)
	c.mu.Unlock()
	c.metrics.SetSandboxPending(n)

	id := msg.ID
	timer := time.AfterFunc(cfg.timeout, func() {
		if c.resolve(id, result{err: fmt.Errorf("%s #%d after %s: %w", msg.Type, id, cfg.timeout, ErrRequestTimeout)}) {
			c.logger.Warn("sandbox request timed out", zap.String("type", msg.Type), zap.Int64("id", id))
		}
	})
	defer timer.Stop()

	if err := c.port.Post(ctx, msg); err != nil {
		c.resolve(id, result{})
		return Message{}, fmt.Errorf("post %s: %w", msg.Type, err)
	}
	c.metrics.RecordSandboxMessage("out", msg.Type)

	select {
	case r := <-w.ch:
		return r.msg, r.err
	case <-ctx.Done():
		c.resolve(id, result{})
		return Message{}, ctx.Err()
	}
}

// Send posts msg without waiting for a reply.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	if err := c.port.Post(ctx, msg); err != nil {
		return fmt.Errorf("post %s: %w", msg.Type, err)
	}
	c.metrics.RecordSandboxMessage("out", msg.Type)
	return nil
}

// Expect waits for the next unsolicited message of the given type. A matching
// message that arrived before anyone was waiting is returned immediately.
func (c *Channel) Expect(ctx context.Context, msgType string) (Message, error) {
	ch := make(chan Message, 1)

	c.mu.Lock()
	if msg, ok := c.unclaimed[msgType]; ok {
		delete(c.unclaimed, msgType)
		c.mu.Unlock()
		return msg, nil
	}
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrChannelClosed
	}
	c.expecting[msgType] = append(c.expecting[msgType], ch)
	c.mu.Unlock()

	select {
	case msg, ok := <-ch:
		if !ok {
			return Message{}, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		c.mu.Lock()
		c.dropExpecter(msgType, ch)
		c.mu.Unlock()
		return Message{}, ctx.Err()
	}
}

// Pending returns the number of requests awaiting a reply.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the channel has stopped dispatching.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close closes the port and fails every pending request.
func (c *Channel) Close() error {
	err := c.port.Close()
	<-c.done
	return err
}

func (c *Channel) dispatch() {
	defer c.shutdown()

	for env := range c.port.Inbound() {
		if c.opts.Origin != "" && env.Origin != c.opts.Origin {
			c.logger.Debug("dropping message from unexpected origin",
				zap.String("origin", env.Origin),
				zap.String("type", env.Message.Type))
			continue
		}

		msg := env.Message
		c.metrics.RecordSandboxMessage("in", msg.Type)

		switch {
		case msg.Type == TypeConsole:
			if c.opts.OnConsole != nil {
				c.opts.OnConsole(msg.Method, strings.Join(msg.Args, " "))
			}
		case msg.ID != 0:
			r := result{msg: msg}
			if msg.Type == TypeDevServerError {
				r = result{err: &RemoteError{Message: msg.Error}}
			}
			if !c.resolve(msg.ID, r) {
				c.logger.Debug("dropping reply for unknown request",
					zap.Int64("id", msg.ID), zap.String("type", msg.Type))
			}
		case msg.Type == TypeDevServerError:
			c.logger.Warn("sandbox reported dev server error", zap.String("error", msg.Error))
			c.abortWaiters(&RemoteError{Message: msg.Error})
			if c.opts.OnDevServerError != nil {
				c.opts.OnDevServerError(msg.Error)
			}
		default:
			c.deliverUnsolicited(msg)
		}
	}
}

// resolve completes the waiter for id at most once. It reports whether a
// waiter was found.
func (c *Channel) resolve(id int64, r result) bool {
	c.mu.Lock()
	w, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.metrics.SetSandboxPending(n)
	w.ch <- r
	return true
}

func (c *Channel) abortWaiters(err error) {
	c.mu.Lock()
	var aborted []*waiter
	for id, w := range c.pending {
		if w.abortOnError {
			delete(c.pending, id)
			aborted = append(aborted, w)
		}
	}
	n := len(c.pending)
	c.mu.Unlock()

	c.metrics.SetSandboxPending(n)
	for _, w := range aborted {
		w.ch <- result{err: err}
	}
}

func (c *Channel) deliverUnsolicited(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.expecting[msg.Type]
	if len(waiters) == 0 {
		c.unclaimed[msg.Type] = msg
		return
	}
	ch := waiters[0]
	c.expecting[msg.Type] = waiters[1:]
	ch <- msg
}

func (c *Channel) dropExpecter(msgType string, ch chan Message) {
	waiters := c.expecting[msgType]
	for i, w := range waiters {
		if w == ch {
			c.expecting[msgType] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

func (c *Channel) shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]*waiter)
	expecting := c.expecting
	c.expecting = make(map[string][]chan Message)
	c.mu.Unlock()

	c.metrics.SetSandboxPending(0)
	for _, w := range pending {
		w.ch <- result{err: fmt.Errorf("%s: %w", w.kind, ErrChannelClosed)}
	}
	for _, chans := range expecting {
		for _, ch := range chans {
			close(ch)
		}
	}
	close(c.done)
}
