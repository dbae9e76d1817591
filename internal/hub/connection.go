package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport names the carrier of a connection.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// Connection is one live transport session. Its outbound queue is filled by
// the hub and drained by the transport's writer.
type Connection struct {
	ID          string
	UserID      string
	DisplayName string
	Transport   Transport
	ConnectedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Hub.mu
	rooms      map[string]struct{}
	registered bool
}

// NewConnection creates an unregistered connection with a bounded queue.
func NewConnection(userID, displayName string, transport Transport, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		DisplayName: displayName,
		Transport:   transport,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		rooms:       make(map[string]struct{}),
	}
}

// Outbound returns the queue of encoded frames to write to the client.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection has been asked to terminate.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close signals the transport to terminate. It does not unregister the
// connection; the transport calls Disconnect when its loops exit.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full queue means the client cannot keep up.
func (c *Connection) enqueue(frame []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
