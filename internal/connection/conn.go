package connection

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Conn is one live client connection owned by a Server.
// Attributes set through SetInfo are the only state the chat core attaches to it.
type Conn struct {
	id     uuid.UUID
	stream stream
	remote net.Addr
	server *Server
	outbox *Queue[string]

	infoMu sync.RWMutex
	info   map[string]any

	closing   atomic.Bool
	causeMu   sync.Mutex
	cause     error // First write failure, reported as the fault
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(s stream, server *Server, queueSize int) *Conn {
	return &Conn{
		id:     uuid.New(),
		stream: s,
		remote: s.RemoteAddr(),
		server: server,
		outbox: NewQueue[string](queueSize),
		info:   make(map[string]any),
		done:   make(chan struct{}),
	}
}

// ID returns the connection identifier, unique per live connection.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

func (c *Conn) String() string {
	if c.remote == nil {
		return c.id.String()
	}
	return c.remote.String()
}

// Info returns an attribute previously stored with SetInfo or SetInfoOnce.
func (c *Conn) Info(key string) (any, bool) {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	v, ok := c.info[key]
	return v, ok
}

// SetInfo stores an attribute, replacing any previous value.
func (c *Conn) SetInfo(key string, value any) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.info[key] = value
}

// SetInfoOnce stores an attribute only if the key is unset.
// Returns false if the key already had a value.
func (c *Conn) SetInfoOnce(key string, value any) bool {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	if _, ok := c.info[key]; ok {
		return false
	}
	c.info[key] = value
	return true
}

// Send queues a message for this connection, waiting while its queue is full.
func (c *Conn) Send(msg string) error {
	if c.closing.Load() || !c.outbox.Send(msg) {
		return ErrConnClosed
	}
	return nil
}

// Close stops accepting messages, lets the writer flush what is already queued
// and then closes the transport. It does not wait for the flush.
func (c *Conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.outbox.Close()
	return nil
}

// Done is closed once the connection is torn down and its handler notified.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// abort closes the transport immediately, dropping queued messages.
func (c *Conn) abort() error {
	c.closing.Store(true)
	c.outbox.Close()
	return c.stream.Close()
}

func (c *Conn) readLoop() {
	for {
		line, err := c.stream.ReadLine()
		if err != nil {
			c.teardown(err)
			return
		}
		if line == "" {
			continue
		}
		c.server.handler.MessageReceived(line, c)
	}
}

func (c *Conn) writeLoop() {
	for {
		msg, ok := c.outbox.Receive()
		if !ok {
			break
		}
		if err := c.stream.WriteLine(msg); err != nil {
			c.causeMu.Lock()
			if c.cause == nil {
				c.cause = err
			}
			c.causeMu.Unlock()
			c.outbox.Close()
			break
		}
	}
	// Unblocks the reader, which performs the teardown.
	c.stream.Close()
}

// teardown runs once per connection, from the reader goroutine.
func (c *Conn) teardown(readErr error) {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		c.stream.Close()
		c.server.clients.delete(c)
		c.server.retiredBlocked.Add(c.outbox.Stats().BlockedSends)

		c.causeMu.Lock()
		cause := c.cause
		c.causeMu.Unlock()
		if cause == nil && !c.closing.Load() && !isClosedErr(readErr) {
			cause = readErr
		}

		if cause != nil {
			c.server.logger.Debug("connection fault", "conn_id", c.id, "error", cause)
			c.server.handler.ConnectionFault(c, cause)
		} else {
			c.server.handler.ConnectionClosed(c)
		}
		close(c.done)
	})
}
