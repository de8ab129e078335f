package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	parentOrigin  = "http://localhost:8787"
	sandboxOrigin = "http://127.0.0.1:8788"
)

func newPair(t *testing.T, opts Options) (*Channel, Port) {
	t.Helper()
	local, remote := Pipe(parentOrigin, sandboxOrigin)
	if opts.Origin == "" {
		opts.Origin = sandboxOrigin
	}
	ch := NewChannel(local, opts)
	t.Cleanup(func() { _ = ch.Close() })
	return ch, remote
}

func next(t *testing.T, p Port) Message {
	t.Helper()
	select {
	case env, ok := <-p.Inbound():
		require.True(t, ok, "port closed")
		return env.Message
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestRequestRepliesCorrelateOutOfOrder(t *testing.T) {
	ch, peer := newPair(t, Options{})
	ctx := context.Background()

	type outcome struct {
		root string
		url  string
		err  error
	}
	done := make(chan outcome, 2)
	request := func(root string) {
		reply, err := ch.Request(ctx, Message{Type: TypeStartDevServer, Root: root})
		done <- outcome{root: root, url: reply.URL, err: err}
	}

	go request("/a")
	first := next(t, peer)
	go request("/b")
	second := next(t, peer)
	assert.Less(t, first.ID, second.ID)

	require.NoError(t, peer.Post(ctx, Message{Type: TypeStartDevServer, ID: second.ID, URL: "/preview" + second.Root}))
	require.NoError(t, peer.Post(ctx, Message{Type: TypeStartDevServer, ID: first.ID, URL: "/preview" + first.Root}))

	for i := 0; i < 2; i++ {
		o := <-done
		require.NoError(t, o.err)
		assert.Equal(t, "/preview"+o.root, o.url)
	}
	assert.Equal(t, 0, ch.Pending())
}

func TestRequestIDsIncrease(t *testing.T) {
	ch, peer := newPair(t, Options{})
	ctx := context.Background()

	go func() {
		for i := 0; i < 3; i++ {
			m := next(t, peer)
			_ = peer.Post(ctx, Message{Type: TypeInitComplete, ID: m.ID})
		}
	}()

	var last int64
	for i := 0; i < 3; i++ {
		reply, err := ch.Request(ctx, Message{Type: TypeInit})
		require.NoError(t, err)
		assert.Greater(t, reply.ID, last)
		last = reply.ID
	}
}

func TestRequestTimeoutRemovesWaiter(t *testing.T) {
	ch, peer := newPair(t, Options{RequestTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := ch.Request(ctx, Message{Type: TypeStartDevServer, Port: 3000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 0, ch.Pending())

	// A late reply for the expired id is dropped.
	req := next(t, peer)
	require.NoError(t, peer.Post(ctx, Message{Type: TypeStartDevServer, ID: req.ID, URL: "/late"}))

	go func() {
		m := next(t, peer)
		_ = peer.Post(ctx, Message{Type: TypeStartDevServer, ID: m.ID, URL: "/fresh"})
	}()
	reply, err := ch.Request(ctx, Message{Type: TypeStartDevServer}, WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "/fresh", reply.URL)
}

func TestTimeoutsAreIndependent(t *testing.T) {
	ch, peer := newPair(t, Options{})
	ctx := context.Background()

	go func() {
		_ = next(t, peer)
		slow := next(t, peer)
		_ = peer.Post(ctx, Message{Type: TypeInitComplete, ID: slow.ID})
	}()

	_, err := ch.Request(ctx, Message{Type: TypeInit}, WithTimeout(10*time.Millisecond))
	assert.ErrorIs(t, err, ErrRequestTimeout)

	_, err = ch.Request(ctx, Message{Type: TypeInit}, WithTimeout(time.Second))
	assert.NoError(t, err)
}

func TestForeignOriginIgnored(t *testing.T) {
	ch, peer := newPair(t, Options{Origin: "http://sandbox.example", RequestTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	go func() {
		m := next(t, peer)
		_ = peer.Post(ctx, Message{Type: TypeInitComplete, ID: m.ID})
	}()

	_, err := ch.Request(ctx, Message{Type: TypeInit})
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestConsoleRouted(t *testing.T) {
	lines := make(chan string, 1)
	_, peer := newPair(t, Options{OnConsole: func(method, line string) {
		lines <- method + ":" + line
	}})

	require.NoError(t, peer.Post(context.Background(), Message{Type: TypeConsole, Method: "error", Args: []string{"boom", "42"}}))

	select {
	case got := <-lines:
		assert.Equal(t, "error:boom 42", got)
	case <-time.After(time.Second):
		t.Fatal("console line not routed")
	}
}

func TestDevServerErrorReplyRejects(t *testing.T) {
	ch, peer := newPair(t, Options{})
	ctx := context.Background()

	go func() {
		m := next(t, peer)
		_ = peer.Post(ctx, Message{Type: TypeDevServerError, ID: m.ID, Error: "port in use"})
	}()

	_, err := ch.Request(ctx, Message{Type: TypeStartDevServer})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "port in use", remote.Message)
}

func TestUnsolicitedDevServerErrorAbortsOptedInRequests(t *testing.T) {
	reported := make(chan string, 1)
	ch, peer := newPair(t, Options{OnDevServerError: func(msg string) { reported <- msg }})
	ctx := context.Background()

	initDone := make(chan error, 1)
	go func() {
		_, err := ch.Request(ctx, Message{Type: TypeInit}, AbortOnError())
		initDone <- err
	}()
	otherDone := make(chan error, 1)
	go func() {
		_, err := ch.Request(ctx, Message{Type: TypeStartDevServer}, WithTimeout(100*time.Millisecond))
		otherDone <- err
	}()

	_ = next(t, peer)
	_ = next(t, peer)
	require.NoError(t, peer.Post(ctx, Message{Type: TypeDevServerError, Error: "snapshot corrupt"}))

	var remote *RemoteError
	require.ErrorAs(t, <-initDone, &remote)
	assert.Equal(t, "snapshot corrupt", remote.Message)
	assert.ErrorIs(t, <-otherDone, ErrRequestTimeout)
	assert.Equal(t, "snapshot corrupt", <-reported)
}

func TestExpectSeesEarlyMessage(t *testing.T) {
	ch, peer := newPair(t, Options{})
	require.NoError(t, peer.Post(context.Background(), Message{Type: TypeReady}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := ch.Expect(ctx, TypeReady)
	require.NoError(t, err)
	assert.Equal(t, TypeReady, msg.Type)
}

func TestCloseFailsPending(t *testing.T) {
	ch, peer := newPair(t, Options{})

	errs := make(chan error, 1)
	go func() {
		_, err := ch.Request(context.Background(), Message{Type: TypeInit})
		errs <- err
	}()
	_ = next(t, peer)

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, <-errs, ErrChannelClosed)

	_, err := ch.Request(context.Background(), Message{Type: TypeInit})
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestAttachFrameWaitsForReady(t *testing.T) {
	local, remote := Pipe(parentOrigin, sandboxOrigin)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = remote.Post(context.Background(), Message{Type: TypeReady})
	}()

	frame, err := AttachFrame(context.Background(), local, sandboxOrigin, FrameConfig{ReadyTimeout: time.Second})
	require.NoError(t, err)
	defer frame.Close()
	assert.Equal(t, sandboxOrigin, frame.Origin())
}

func TestAttachFrameReadyTimeout(t *testing.T) {
	local, _ := Pipe(parentOrigin, sandboxOrigin)

	_, err := AttachFrame(context.Background(), local, sandboxOrigin, FrameConfig{ReadyTimeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
