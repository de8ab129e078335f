package vfs

import "sync"

// Guard owns one listener registration. Releasing it is idempotent, so
// every Subscribe is paired with exactly one effective teardown.
type Guard struct {
	once     sync.Once
	mu       sync.Mutex
	released bool
	release  func()
}

func newGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release removes the listener. Safe to call more than once and on nil.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.release()
		g.mu.Lock()
		g.released = true
		g.mu.Unlock()
	})
}

// Active reports whether the listener is still registered.
func (g *Guard) Active() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.released
}
