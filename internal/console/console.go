// Package console implements the operator console of the chat server.
//
// Lines starting with # are commands (#start, #stop, #close, #getport,
// #setport <port>, #quit). Any other line is broadcast to every client with
// the server prefix.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/simplechat/internal/command"
	"github.com/rickgao/simplechat/internal/connection"
	"github.com/rickgao/simplechat/internal/router"
)

// Operator notices.
const (
	Banner           = "Server started. Execute the #start command to listen to connections."
	AlreadyListening = "Server is already listening for connections."
	AlreadyStopped   = "Already stopped listening."
	PortUsage        = "Please specify the port. Usage:#setport <port>"
	PortNotNumeric   = "Port should be a numeric value."
	PortWhileListen  = "You must stop listening in order to set the port."
	PortOutOfRange   = "Port should be between 0 and 65535."
	Exiting          = "Exiting server."
	CannotContact    = "Cannot contact the server. Please try again later."
	NotLoggedOn      = "You need to be logged on to send a message to the server. Use the #login command to connect to the server."
)

// Server is the part of connection.Server the console drives.
type Server interface {
	Listen() error
	StopListening() error
	Close() error
	IsListening() bool
	Port() int
	SetPort(port int) error
	SendToAll(msg string) error
}

// Session reads operator input and applies it to a server.
type Session struct {
	server Server
	out    io.Writer
	logger *slog.Logger
}

// New creates a Session that prints notices to out.
func New(server Server, out io.Writer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		server: server,
		out:    out,
		logger: logger,
	}
}

// Run prints the banner and handles lines from in until EOF, #quit or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	s.display(Banner)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console: %w", err)
					}
				default:
				}
				s.logger.Info("console input closed")
				return nil
			}
			if s.Handle(line) {
				return nil
			}
		}
	}
}

// Handle processes one console line and reports whether the operator asked to quit.
func (s *Session) Handle(line string) (quit bool) {
	if strings.TrimSpace(line) == "" {
		return false
	}

	cmd, ok := command.Parse(line)
	if !ok {
		s.broadcast(line)
		return false
	}

	switch cmd.Kind {
	case command.Start:
		s.start()
	case command.Stop:
		s.stop()
	case command.Close:
		if err := s.server.Close(); err != nil {
			s.report(err)
		}
	case command.GetPort:
		s.display(fmt.Sprintf("PORT: %d", s.server.Port()))
	case command.SetPort:
		s.setPort(cmd.Port)
	case command.Quit:
		if err := s.server.Close(); err != nil {
			s.report(err)
		}
		s.display(Exiting)
		return true
	default:
		s.display(fmt.Sprintf("%s%s is not a valid command", command.Prefix, cmd.Name))
	}
	return false
}

func (s *Session) broadcast(line string) {
	msg := router.ServerPrefix + line
	if err := s.server.SendToAll(msg); err != nil {
		s.logger.Debug("operator broadcast incomplete", "error", err)
	}
	s.display(msg)
}

func (s *Session) start() {
	if s.server.IsListening() {
		s.display(AlreadyListening)
		return
	}
	err := s.server.Listen()
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrListening):
		s.display(AlreadyListening)
	default:
		s.report(err)
	}
}

func (s *Session) stop() {
	if !s.server.IsListening() {
		s.display(AlreadyStopped)
		return
	}
	err := s.server.StopListening()
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrNotListening):
		s.display(AlreadyStopped)
	default:
		s.report(err)
	}
}

func (s *Session) setPort(arg command.PortArg) {
	switch arg.Status {
	case command.PortMissing:
		s.display(PortUsage)
		return
	case command.PortMalformed:
		s.display(PortNotNumeric)
		return
	}

	if s.server.IsListening() {
		s.display(PortWhileListen)
		return
	}
	if arg.Value < 0 || arg.Value > 65535 {
		s.display(PortOutOfRange)
		return
	}

	err := s.server.SetPort(arg.Value)
	switch {
	case err == nil:
		s.display(fmt.Sprintf("Port set to %d.", arg.Value))
	case errors.Is(err, connection.ErrListening):
		s.display(PortWhileListen)
	case errors.Is(err, connection.ErrInvalidPort):
		s.display(PortOutOfRange)
	default:
		s.report(err)
	}
}

// report turns a server failure into an operator notice.
func (s *Session) report(err error) {
	s.logger.Warn("console command failed", "error", err)
	if errors.Is(err, connection.ErrListen) {
		s.display(CannotContact)
		return
	}
	s.display(NotLoggedOn)
}

func (s *Session) display(text string) {
	fmt.Fprintln(s.out, text)
}
