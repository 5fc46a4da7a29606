package registry

import "sync"

// Conn is the transport handle the registry and relay engine operate on.
type Conn interface {
	// ID returns a stable identifier used in logs.
	ID() string
	// Send queues msg for delivery without blocking. It reports whether the
	// message was accepted; false means it was dropped.
	Send(msg []byte) bool
	// SendWait queues msg like Send but waits for buffer space instead of
	// dropping. It gives up, returning false, when the connection closes or
	// the transport's write timeout passes.
	SendWait(msg []byte) bool
	// IsOpen reports whether the connection can still deliver messages.
	IsOpen() bool
}

// Registry is the set of tracked connections. All methods are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[Conn]struct{})}
}

// Register adds c. Registering a connection twice is a no-op.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes c and reports whether it was present.
func (r *Registry) Unregister(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return false
	}
	delete(r.conns, c)
	return true
}

// Contains reports whether c is currently tracked.
func (r *Registry) Contains(c Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c]
	return ok
}

// ForEachLive calls fn once for every tracked connection that is open at the
// time it is visited. Order is unspecified. Closed connections are skipped
// but left in place for Sweep.
//
// fn runs without the registry lock held, so it may call back into the
// registry.
func (r *Registry) ForEachLive(fn func(Conn)) {
	for _, c := range r.snapshot() {
		if c.IsOpen() {
			fn(c)
		}
	}
}

// Sweep removes every connection that is no longer open and returns them.
func (r *Registry) Sweep() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Conn
	for c := range r.conns {
		if !c.IsOpen() {
			delete(r.conns, c)
			removed = append(removed, c)
		}
	}
	return removed
}

// Count returns the number of tracked connections, open or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}
