package connection

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// stream is one client's transport. ReadLine is only called from the reader
// goroutine and WriteLine only from the writer goroutine.
type stream interface {
	ReadLine() (string, error)
	WriteLine(msg string) error
	Close() error
	RemoteAddr() net.Addr
}

// tcpStream carries newline-delimited messages over a net.Conn.
type tcpStream struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration
}

func newTCPStream(conn net.Conn, maxLine int, writeTimeout time.Duration) *tcpStream {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	return &tcpStream{
		conn:         conn,
		scanner:      scanner,
		writeTimeout: writeTimeout,
	}
}

func (s *tcpStream) ReadLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSuffix(s.scanner.Text(), "\r"), nil
}

func (s *tcpStream) WriteLine(msg string) error {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err := io.WriteString(s.conn, msg)
	return err
}

func (s *tcpStream) Close() error {
	return s.conn.Close()
}

func (s *tcpStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// wsStream carries one message per WebSocket text frame.
type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSStream(conn *websocket.Conn, maxLine int, writeTimeout time.Duration) *wsStream {
	conn.SetReadLimit(int64(maxLine))
	return &wsStream{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *wsStream) ReadLine() (string, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return "", io.EOF
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (s *wsStream) WriteLine(msg string) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(msg, "\n")))
}

func (s *wsStream) Close() error {
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

func (s *wsStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// isClosedErr reports errors that mean the peer or the server closed the stream
// rather than a transport fault.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
