package registry

import (
	"sync"
	"time"
)

// Sink is one physical streaming transport handle. The registry only
// needs to push frame bytes into it; any write error means the peer is
// gone and the connection gets evicted.
type Sink interface {
	Write(p []byte) error
	Close() error
}

// Conn binds a client identity to a single Sink. A client may hold many
// Conns at once. The Conn owns its sink exclusively for its lifetime.
type Conn struct {
	clientID    string
	name        string
	sink        Sink
	connectedAt time.Time

	mu       sync.Mutex // serializes sink writes, guards lastSeen
	lastSeen time.Time
}

func newConn(clientID string, sink Sink, name string) *Conn {
	now := time.Now()
	return &Conn{
		clientID:    clientID,
		name:        name,
		sink:        sink,
		connectedAt: now,
		lastSeen:    now,
	}
}

// ClientID returns the client identity this connection belongs to.
func (c *Conn) ClientID() string { return c.clientID }

// Name returns the optional human label supplied at connect time.
func (c *Conn) Name() string { return c.name }

// ConnectedAt returns the time the connection was registered.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// LastSeen returns the time of the last successful write to this connection.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Send encodes a single event frame and writes it to this connection only.
// Used for the connection-confirmation frame right after registration;
// regular delivery goes through Registry.SendToClient and Broadcast.
func (c *Conn) Send(event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// write pushes a pre-encoded frame into the sink. At most one writer
// touches the sink at a time; lastSeen advances only on success.
func (c *Conn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sink.Write(frame); err != nil {
		return err
	}
	c.lastSeen = time.Now()
	return nil
}
