package registry

import (
	"sync"
	"time"

	"go-event-registry/internal/infrastructure/logger"
)

// DefaultHeartbeatPeriod is how often every live connection is probed.
// It is also the upper bound on how long a dead connection can linger
// when the transport layer fails to report teardown.
const DefaultHeartbeatPeriod = 25 * time.Second

// Reserved event names emitted by the registry itself. Application event
// names should not collide with these; that is a convention, not enforced.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
)

// Registry tracks open streaming connections keyed by client identity.
// One instance lives for the whole process and is shared by every
// request-handling context.
type Registry struct {
	mu      sync.RWMutex
	clients map[string][]*Conn

	heartbeatPeriod time.Duration
	heartbeatOnce   sync.Once

	logger logger.Logger
}

// New creates an empty Registry. A non-positive heartbeatPeriod selects
// DefaultHeartbeatPeriod. The heartbeat loop is not started here; it
// starts lazily on the first Add and runs for the process lifetime.
func New(log logger.Logger, heartbeatPeriod time.Duration) *Registry {
	if heartbeatPeriod <= 0 {
		heartbeatPeriod = DefaultHeartbeatPeriod
	}
	return &Registry{
		clients:         make(map[string][]*Conn),
		heartbeatPeriod: heartbeatPeriod,
		logger:          log.WithField("component", "registry"),
	}
}

// Add registers a new connection for clientID. It never fails: the
// connection record is created, inserted into the client's set, and
// returned. The set holds each sink at most once; re-registering a sink
// already present returns its existing connection. The first Add starts
// the heartbeat loop.
func (r *Registry) Add(clientID string, sink Sink, name string) *Conn {
	conn := newConn(clientID, sink, name)

	r.mu.Lock()
	for _, existing := range r.clients[clientID] {
		if existing.sink == sink {
			r.mu.Unlock()
			r.logger.Debugf("sink already registered for client %s", clientID)
			return existing
		}
	}
	r.clients[clientID] = append(r.clients[clientID], conn)
	totalConns := r.totalLocked()
	totalClients := len(r.clients)
	r.mu.Unlock()

	r.logger.Infof(
		"client %s connected (connections: %d, clients: %d)",
		clientID, totalConns, totalClients,
	)

	r.heartbeatOnce.Do(func() {
		go r.heartbeatLoop()
	})

	return conn
}

// Remove tears down every connection for clientID and deletes the client
// key. Unknown ids are a no-op.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	conns := r.clients[clientID]
	delete(r.clients, clientID)
	r.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	for _, conn := range conns {
		r.closeSink(conn)
	}
	r.logger.Infof("client %s disconnected (%d connections closed)", clientID, len(conns))
}

// RemoveSink removes the single connection for clientID that owns sink,
// closing it. The client key is deleted when its last connection goes.
// Unknown ids and unknown sinks are no-ops.
func (r *Registry) RemoveSink(clientID string, sink Sink) {
	r.mu.Lock()
	conns := r.clients[clientID]
	var removed *Conn
	for i, conn := range conns {
		if conn.sink == sink {
			removed = conn
			r.clients[clientID] = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if removed != nil && len(r.clients[clientID]) == 0 {
		delete(r.clients, clientID)
	}
	r.mu.Unlock()

	if removed == nil {
		return
	}

	r.closeSink(removed)
	r.logger.Infof("connection removed for client %s", clientID)
}

// Has reports whether clientID currently holds at least one live connection.
func (r *Registry) Has(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[clientID]) > 0
}

// ClientIDs returns every registered client identity, order unspecified.
func (r *Registry) ClientIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// closeSink closes a removed connection's sink. Best effort: eviction
// never depends on the close outcome.
func (r *Registry) closeSink(conn *Conn) {
	if err := conn.sink.Close(); err != nil {
		r.logger.Debugf("close sink for client %s: %v", conn.clientID, err)
	}
}

// snapshotClient copies one client's connection slice so callers can
// iterate and evict without holding the lock.
func (r *Registry) snapshotClient(clientID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.clients[clientID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Conn, len(conns))
	copy(out, conns)
	return out
}

// snapshotAll copies the whole registry for lock-free iteration.
func (r *Registry) snapshotAll() map[string][]*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]*Conn, len(r.clients))
	for id, conns := range r.clients {
		cp := make([]*Conn, len(conns))
		copy(cp, conns)
		out[id] = cp
	}
	return out
}

// totalLocked sums connection-set sizes. Caller holds r.mu.
func (r *Registry) totalLocked() int {
	total := 0
	for _, conns := range r.clients {
		total += len(conns)
	}
	return total
}
