package sandbox

import (
	"context"
	"sync"
)

// Port is an ordered, bidirectional message pipe to one peer. Post must be
// safe for concurrent use and preserve the order of calls from one goroutine.
// Inbound is closed when the port shuts down.
type Port interface {
	Post(ctx context.Context, msg Message) error
	Inbound() <-chan Envelope
	Close() error
}

const pipeBuffer = 256

// Pipe returns two connected in-memory ports. Messages posted on one arrive
// at the other stamped with the sender's origin. Closing either end closes
// both.
func Pipe(originA, originB string) (Port, Port) {
	a := &pipeEnd{origin: originA, in: make(chan Envelope, pipeBuffer), done: make(chan struct{})}
	b := &pipeEnd{origin: originB, in: make(chan Envelope, pipeBuffer), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

type pipeEnd struct {
	origin string
	in     chan Envelope
	peer   *pipeEnd

	done      chan struct{}
	closeOnce sync.Once

	// mu guards closed against sends racing close(in).
	mu     sync.RWMutex
	closed bool
}

func (p *pipeEnd) Post(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}
	return p.peer.deliver(ctx, Envelope{Origin: p.origin, Message: msg})
}

func (p *pipeEnd) deliver(ctx context.Context, env Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrChannelClosed
	}
	select {
	case p.in <- env:
		return nil
	case <-p.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Inbound() <-chan Envelope {
	return p.in
}

func (p *pipeEnd) Close() error {
	p.shutdown()
	p.peer.shutdown()
	return nil
}

func (p *pipeEnd) shutdown() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		close(p.in)
		p.mu.Unlock()
	})
}
