package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrListen       = errors.New("cannot listen")
	ErrListening    = errors.New("server is listening")
	ErrNotListening = errors.New("server is not listening")
	ErrConnClosed   = errors.New("connection closed")
	ErrInvalidPort  = errors.New("invalid port")
)

// Handler receives connection and listener lifecycle events.
//
// Callbacks for a single connection are made from that connection's reader goroutine,
// so MessageReceived calls for one connection never overlap. Exactly one of
// ConnectionClosed or ConnectionFault is reported per connection.
type Handler interface {
	ConnectionOpened(c *Conn)
	ConnectionClosed(c *Conn)
	ConnectionFault(c *Conn, err error)
	ListeningStarted()
	ListeningStopped()
	ListeningFault(err error)
	MessageReceived(msg string, c *Conn)
}

// NopHandler ignores every event.
type NopHandler struct{}

func (NopHandler) ConnectionOpened(*Conn) {}
func (NopHandler) ConnectionClosed(*Conn) {}
func (NopHandler) ConnectionFault(*Conn, error) {}
func (NopHandler) ListeningStarted() {}
func (NopHandler) ListeningStopped() {}
func (NopHandler) ListeningFault(error) {}
func (NopHandler) MessageReceived(string, *Conn) {}

// Config configures a Server.
type Config struct {
	Host            string        // Bind address, empty for all interfaces
	Port            int           // Initial TCP port
	WebSocketPort   int           // 0 disables the WebSocket listener
	WebSocketPath   string        // Upgrade path, e.g. /ws
	SendQueueSize   int           // Outbound messages buffered per connection
	WriteTimeout    time.Duration // Write deadline per message
	ShutdownTimeout time.Duration // Max wait for connections to flush on Close
	MaxLineBytes    int           // Longest accepted inbound message
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:            5555,
		WebSocketPath:   "/ws",
		SendQueueSize:   64,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxLineBytes:    64 * 1024,
	}
}
