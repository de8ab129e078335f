package orchestrator

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/installer"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/vfs"
	"github.com/cespare/xxhash/v2"
)

// Session is the runtime session: the handles one active preview needs.
type Session struct {
	ID   id.SessionID
	Port int
	Mode string

	fs        vfs.FileSystem
	installer installer.Installer
	project   string
	url       string
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID        string `json:"id"`
	Port      int    `json:"port"`
	Mode      string `json:"mode"`
	ProjectID string `json:"projectId,omitempty"`
	URL       string `json:"url,omitempty"`
	State     State  `json:"state"`
}

func newSession(mode string, portBase, portSpan int) *Session {
	sid := id.NewSessionID()
	return &Session{
		ID:   sid,
		Port: sessionPort(sid.String(), portBase, portSpan),
		Mode: mode,
	}
}

// sessionPort derives a fixed port from the session id so concurrent
// sessions sharing one bridge rarely collide.
func sessionPort(sid string, base, span int) int {
	if span <= 0 {
		return base
	}
	return base + int(xxhash.Sum64String(sid)%uint64(span))
}

// Owner admits at most one active session at a time.
type Owner struct {
	mu     sync.Mutex
	holder id.SessionID
}

var defaultOwner = &Owner{}

// DefaultOwner returns the process-wide owner.
func DefaultOwner() *Owner {
	return defaultOwner
}

// NewOwner creates an owner independent of the process-wide one.
func NewOwner() *Owner {
	return &Owner{}
}

// Acquire claims the owner for sid. Re-acquiring by the holder succeeds.
func (o *Owner) Acquire(sid id.SessionID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.holder != "" && o.holder != sid {
		return fmt.Errorf("%w: held by %s", ErrSessionActive, o.holder)
	}
	o.holder = sid
	return nil
}

// Release frees the owner if sid holds it.
func (o *Owner) Release(sid id.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.holder == sid {
		o.holder = ""
	}
}

// Holder returns the current holder, or "".
func (o *Owner) Holder() id.SessionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.holder
}
