package router

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rickgao/simplechat/internal/audit"
	"github.com/rickgao/simplechat/internal/connection"
)

// Connection attribute keys.
const (
	InfoLoginID       = "loginId"
	InfoRemoteAddress = "remoteAddress"
)

// ServerPrefix marks text that originates from the server rather than a client.
const ServerPrefix = "SERVER MSG> "

// TerminationNotice is sent to a client that repeats #login before it is disconnected.
const TerminationNotice = ServerPrefix + "#login should be the first command to be received.  Your session is going to be terminated"

const (
	loginCommand = "#login"
	anonymous    = "anonymous"
)

// Broadcaster delivers messages to every connected client.
type Broadcaster interface {
	SendToAll(msg string) error
	NumberOfClients() int
	Port() int
}

// Client is the per-connection surface the router needs. *connection.Conn satisfies it.
type Client interface {
	ID() uuid.UUID
	String() string
	Info(key string) (any, bool)
	SetInfo(key string, value any)
	SetInfoOnce(key string, value any) bool
	Send(msg string) error
	Close() error
}

// ChatRouter handles server events. It holds no state of its own beyond the
// attributes it stores on each connection, so callbacks may run concurrently.
type ChatRouter struct {
	server   Broadcaster
	recorder audit.Recorder
	logger   *slog.Logger
}

var _ connection.Handler = (*ChatRouter)(nil)

// New creates a ChatRouter that relays through server.
func New(server Broadcaster, recorder audit.Recorder, logger *slog.Logger) *ChatRouter {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &ChatRouter{
		server:   server,
		recorder: recorder,
		logger:   logger,
	}
}

// MessageReceived applies the login rules and relays msg to everyone.
func (r *ChatRouter) MessageReceived(msg string, c *connection.Conn) {
	r.handleMessage(msg, c)
}

// ConnectionOpened remembers the client's address.
func (r *ChatRouter) ConnectionOpened(c *connection.Conn) {
	r.opened(c)
}

// ConnectionClosed logs the disconnect.
func (r *ChatRouter) ConnectionClosed(c *connection.Conn) {
	r.disconnected(c, nil)
}

// ConnectionFault logs the disconnect the same way as a normal close.
func (r *ChatRouter) ConnectionFault(c *connection.Conn, err error) {
	r.disconnected(c, err)
}

func (r *ChatRouter) ListeningStarted() {
	r.logger.Info("server listening for connections", "port", r.server.Port())
}

func (r *ChatRouter) ListeningStopped() {
	r.logger.Info("server has stopped listening for connections")
}

// ListeningFault logs the failure with a stack trace. The listener is already stopped.
func (r *ChatRouter) ListeningFault(err error) {
	r.logger.Error("listening for connections failed",
		"error", err,
		"stack", string(debug.Stack()),
	)
}

func (r *ChatRouter) handleMessage(msg string, c Client) {
	if id, ok := parseLogin(msg); ok {
		r.login(id, c)
	}

	r.logger.Info("message received",
		"from", loginID(c)+"@"+c.String(),
		"conn_id", c.ID(),
		"message", msg,
	)

	if err := r.server.SendToAll(msg); err != nil {
		r.logger.Debug("broadcast incomplete", "error", err)
	}
}

func (r *ChatRouter) login(id string, c Client) {
	if current, done := c.Info(InfoLoginID); done {
		r.logger.Warn("repeated login, terminating session",
			"conn_id", c.ID(),
			"login_id", current,
			"remote_addr", remoteAddress(c),
		)
		r.record(audit.KindViolation, c, nil)
		ignoreTransportError(c.Send(TerminationNotice))
		ignoreTransportError(c.Close())
		return
	}

	if id == "" || !c.SetInfoOnce(InfoLoginID, id) {
		return
	}
	r.logger.Info("client logged in", "conn_id", c.ID(), "login_id", id)
	r.record(audit.KindLogin, c, nil)
}

func (r *ChatRouter) opened(c Client) {
	c.SetInfo(InfoRemoteAddress, c.String())
	r.logger.Info("client connected",
		"conn_id", c.ID(),
		"remote_addr", c.String(),
		"total_clients", r.server.NumberOfClients(),
	)
	r.record(audit.KindOpened, c, nil)
}

func (r *ChatRouter) disconnected(c Client, err error) {
	r.logger.Info(fmt.Sprintf("%s@%s disconnected from server", loginID(c), remoteAddress(c)),
		"conn_id", c.ID(),
	)
	if err != nil {
		r.logger.Debug("connection fault", "conn_id", c.ID(), "error", err)
		r.record(audit.KindFault, c, err)
		return
	}
	r.record(audit.KindClosed, c, nil)
}

func (r *ChatRouter) record(kind audit.Kind, c Client, err error) {
	e := audit.NewEvent(kind, c.ID(), "", remoteAddress(c))
	if id, ok := c.Info(InfoLoginID); ok {
		e.LoginID = fmt.Sprint(id)
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.recorder.Record(e)
}

// parseLogin reports whether msg is a #login command and returns its first argument.
// "#loginx" is not a login; a bare "#login" returns an empty id.
func parseLogin(msg string) (id string, ok bool) {
	rest, found := strings.CutPrefix(msg, loginCommand)
	if !found {
		return "", false
	}
	if rest != "" {
		if next, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(next) {
			return "", false
		}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", true
	}
	return fields[0], true
}

func loginID(c Client) string {
	if id, ok := c.Info(InfoLoginID); ok {
		return fmt.Sprint(id)
	}
	return anonymous
}

func remoteAddress(c Client) string {
	if addr, ok := c.Info(InfoRemoteAddress); ok {
		return fmt.Sprint(addr)
	}
	return c.String()
}

// ignoreTransportError is the single place where failures to notify or close a
// client are dropped. The client is going away either way.
func ignoreTransportError(error) {}
