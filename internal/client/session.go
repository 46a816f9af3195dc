package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/andy6609/tickchat/internal/protocol"
)

// DefaultMaxContentLength bounds events read from the server. The user list
// grows with the number of users, so it sits well above the server's own
// limit on client payloads.
const DefaultMaxContentLength = 1 << 20

// ErrConnectionLost is reported once the server closes the stream.
var ErrConnectionLost = errors.New("lost connection to server")

// Session is a client connection to the chat server. Incoming events are
// decoded on a background goroutine and delivered through Events.
type Session struct {
	conn   net.Conn
	logger *slog.Logger
	events chan protocol.Event
	done   chan struct{}

	accepted atomic.Bool

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, maxContent uint64, logger *slog.Logger) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, maxContent, logger), nil
}

// NewSession wraps an established connection. A zero maxContent reads
// events of any size.
func NewSession(conn net.Conn, maxContent uint64, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		conn:   conn,
		logger: logger,
		events: make(chan protocol.Event, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop(protocol.NewDecoder(conn, maxContent))
	return s
}

// Events is closed when the connection ends; Err then says why.
func (s *Session) Events() <-chan protocol.Event { return s.events }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Accepted reports whether the server has confirmed a username.
func (s *Session) Accepted() bool { return s.accepted.Load() }

func (s *Session) readLoop(dec *protocol.Decoder) {
	defer close(s.events)
	for {
		ev, err := dec.Decode()
		var oversized *protocol.OversizedError
		if errors.As(err, &oversized) {
			s.logger.Warn("dropped oversized event from server",
				"code", oversized.Header.Code.String(),
				"declared", oversized.Header.ContentLength,
				"max", oversized.Max)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = ErrConnectionLost
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		if ev.Code == protocol.CodeUsernameAccepted {
			s.accepted.Store(true)
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Submit sends line as a username until one is accepted, and as a chat
// message afterwards.
func (s *Session) Submit(line string) error {
	code := protocol.CodeUsernameSubmit
	if s.Accepted() {
		code = protocol.CodeMessage
	}
	return protocol.Write(s.conn, protocol.NewTextEvent(code, protocol.ServerOriginator, line))
}

// Leave tells the server the user is going away and closes the connection.
func (s *Session) Leave() error {
	err := protocol.Write(s.conn, protocol.Event{Code: protocol.CodeUserLeave})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
