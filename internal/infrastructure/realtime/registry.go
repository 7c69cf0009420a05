package realtime

import (
	"sync"
)

// Registry owns the set of live connections. No other component holds
// long-lived references; fan-out and liveness code reach connections only
// through lookup and snapshot iteration, so a connection closing mid-iteration
// can never leave a dangling entry behind.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register starts tracking conn.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()
}

// Unregister stops tracking the connection with the given id. Unregistering
// an unknown or already-removed id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Get returns the tracked connection with the given id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	return conn, ok
}

// Update applies fn to the connection with the given id if it is still
// tracked, and reports whether it was found. Connection state carries its own
// lock, so fn runs without holding the registry lock.
func (r *Registry) Update(id string, fn func(*Connection)) bool {
	conn, ok := r.Get(id)
	if !ok {
		return false
	}
	fn(conn)
	return true
}

// All returns a snapshot of the live connection set. Callers iterate the
// snapshot; removals that happen mid-iteration are tolerated because Send on
// a closed connection fails cleanly.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()
	return conns
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close terminates all tracked connections and clears the registry.
func (r *Registry) Close(code int, reason string) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(code, reason)
	}
}
