package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Server accepts client connections and relays messages to them.
// Listening can be started and stopped repeatedly; stopping keeps existing connections.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	handler Handler

	upgrader websocket.Upgrader

	// State
	mu        sync.Mutex
	port      int
	listening bool
	active    *listenState

	clients        *registry
	retiredBlocked atomic.Int64 // BlockedSends of connections already torn down
}

// listenState is one Listen generation. It is replaced on every Listen
// so a late accept error from a stopped generation is not reported as a fault.
type listenState struct {
	tcp  net.Listener
	ws   *http.Server
	wsLn net.Listener
	wg   sync.WaitGroup
}

// NewServer creates a Server that is not yet listening.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendQueueSize < 1 {
		cfg.SendQueueSize = DefaultConfig().SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if cfg.MaxLineBytes < 1 {
		cfg.MaxLineBytes = DefaultConfig().MaxLineBytes
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = DefaultConfig().WebSocketPath
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: NopHandler{},
		port:    cfg.Port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: newRegistry(),
	}
}

// SetHandler installs the event handler. Call it before Listen.
func (s *Server) SetHandler(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	s.handler = h
}

// Listen starts accepting connections on the current port.
func (s *Server) Listen() error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return ErrListening
	}

	tcp, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.port)))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w on port %d: %w", ErrListen, s.port, err)
	}

	st := &listenState{tcp: tcp}
	if s.cfg.WebSocketPort > 0 {
		wsLn, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.WebSocketPort)))
		if err != nil {
			tcp.Close()
			s.mu.Unlock()
			return fmt.Errorf("%w on websocket port %d: %w", ErrListen, s.cfg.WebSocketPort, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc(s.cfg.WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
			s.serveWebSocket(st, w, r)
		})
		st.ws = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		st.wsLn = wsLn
	}

	s.active = st
	s.listening = true
	s.mu.Unlock()

	st.wg.Add(1)
	go s.acceptLoop(st)

	if st.ws != nil {
		st.wg.Add(1)
		go func() {
			defer st.wg.Done()
			if err := st.ws.Serve(st.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.listenFault(st, err)
			}
		}()
	}

	s.logger.Debug("listener started", "addr", tcp.Addr().String(), "websocket", st.wsLn != nil)
	s.handler.ListeningStarted()
	return nil
}

// StopListening stops accepting new connections. Existing connections stay open.
func (s *Server) StopListening() error {
	st := s.deactivate(nil)
	if st == nil {
		return ErrNotListening
	}
	st.close()
	st.wg.Wait()
	s.handler.ListeningStopped()
	return nil
}

// Close stops listening and terminates every connection.
// Connections get ShutdownTimeout to flush queued messages before they are cut.
func (s *Server) Close() error {
	if err := s.StopListening(); err != nil && !errors.Is(err, ErrNotListening) {
		return err
	}

	conns := s.clients.snapshot()
	for _, c := range conns {
		c.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			select {
			case <-c.Done():
				return nil
			case <-ctx.Done():
				return c.abort()
			}
		})
	}
	ignoreTransportError(g.Wait())
	return nil
}

// ignoreTransportError marks the call sites where teardown failures are dropped on purpose.
func ignoreTransportError(error) {}

// IsListening reports whether new connections are being accepted.
func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// SetPort changes the TCP port used by the next Listen.
func (s *Server) SetPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return ErrListening
	}
	s.port = port
	return nil
}

// Addr returns the bound TCP address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.tcp.Addr()
}

// WebSocketAddr returns the bound WebSocket address, or nil when disabled or not listening.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.wsLn == nil {
		return nil
	}
	return s.active.wsLn.Addr()
}

// SendToAll delivers msg to every registered connection, including its author.
// Delivery is not atomic: failures for some connections do not undo the others.
func (s *Server) SendToAll(msg string) error {
	conns := s.clients.snapshot()
	errs := make([]error, len(conns))

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Send(msg); err != nil {
				errs[i] = fmt.Errorf("send to %s: %w", c.ID(), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// NumberOfClients returns the number of live connections.
func (s *Server) NumberOfClients() int {
	return s.clients.len()
}

// SendStats summarises outbound queueing across connections.
type SendStats struct {
	Queued       int   // Messages waiting in live connection queues
	BlockedSends int64 // Sends that waited for queue room, since the server was created
}

// SendStats returns outbound queue statistics.
func (s *Server) SendStats() SendStats {
	stats := SendStats{BlockedSends: s.retiredBlocked.Load()}
	for _, c := range s.clients.snapshot() {
		q := c.outbox.Stats()
		stats.Queued += q.Count
		stats.BlockedSends += q.BlockedSends
	}
	return stats
}

func (s *Server) acceptLoop(st *listenState) {
	defer st.wg.Done()

	for {
		nc, err := st.tcp.Accept()
		if err != nil {
			s.listenFault(st, err)
			return
		}
		s.keep(st, newTCPStream(nc, s.cfg.MaxLineBytes, s.cfg.WriteTimeout))
	}
}

func (s *Server) serveWebSocket(st *listenState, w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	s.keep(st, newWSStream(ws, s.cfg.MaxLineBytes, s.cfg.WriteTimeout))
}

// keep registers a new connection accepted by generation st and starts its
// reader and writer. A connection that arrives after st was stopped is closed
// instead, so Close never misses one that was still being accepted.
func (s *Server) keep(st *listenState, strm stream) {
	s.mu.Lock()
	if s.active != st {
		s.mu.Unlock()
		s.logger.Debug("rejecting connection accepted after stop", "remote_addr", strm.RemoteAddr())
		strm.Close()
		return
	}
	c := newConn(strm, s, s.cfg.SendQueueSize)
	s.clients.add(c)
	s.mu.Unlock()

	go c.writeLoop()
	go func() {
		s.handler.ConnectionOpened(c)
		c.readLoop()
	}()
}

// listenFault reports an accept failure unless the listener was stopped on purpose.
func (s *Server) listenFault(st *listenState, err error) {
	if s.deactivate(st) == nil {
		return
	}
	st.close()
	s.handler.ListeningFault(err)
	s.handler.ListeningStopped()
}

// deactivate clears the active listen generation. With a non-nil want it only
// clears that generation. Returns the cleared generation or nil.
func (s *Server) deactivate(want *listenState) *listenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.active
	if st == nil || (want != nil && st != want) {
		return nil
	}
	s.active = nil
	s.listening = false
	return st
}

func (st *listenState) close() {
	st.tcp.Close()
	if st.ws != nil {
		// Hijacked WebSocket connections are not tracked by http.Server and stay open.
		st.ws.Close()
	}
}
