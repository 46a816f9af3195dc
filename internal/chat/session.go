package chat

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/andy6609/tickchat/internal/protocol"
)

const inboxSize = 16

// inbound is one decode result handed from a read pump to the tick loop.
type inbound struct {
	event protocol.Event
	err   error
}

// peer is the handle stored in an occupied slot. The tick loop is the only
// goroutine that calls its methods; the pumps talk to it through channels.
type peer struct {
	conn    net.Conn
	session string
	addr    string

	inbox chan inbound
	out   chan []byte
	done  chan struct{}

	writeTimeout time.Duration
	limiter      *rate.Limiter

	started   bool
	closeOnce sync.Once
}

func newPeer(conn net.Conn, cfg Config) *peer {
	p := &peer{
		conn:         conn,
		session:      uuid.NewString(),
		addr:         remoteAddr(conn),
		inbox:        make(chan inbound, inboxSize),
		out:          make(chan []byte, cfg.OutboxSize),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
	}
	if cfg.MessageRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst)
	}
	return p
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// start launches the read and write pumps. wake is called whenever a decode
// result is queued so the loop can run a tick without waiting for the ticker.
func (p *peer) start(maxContent uint64, wake func(), wg *sync.WaitGroup) {
	p.started = true
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readPump(maxContent, wake)
	}()
	go func() {
		defer wg.Done()
		p.writePump()
	}()
}

func (p *peer) readPump(maxContent uint64, wake func()) {
	dec := protocol.NewDecoder(bufio.NewReader(p.conn), maxContent)
	for {
		ev, err := dec.Decode()
		select {
		case p.inbox <- inbound{event: ev, err: err}:
			wake()
		case <-p.done:
			return
		}
		// The next Decode drains an oversized payload, after the loop has the result.
		if err != nil && !errors.Is(err, protocol.ErrOversized) {
			return
		}
	}
}

// pending reports whether a decode result is waiting.
func (p *peer) pending() bool { return len(p.inbox) > 0 }

// ready reports whether the outbox can take another frame.
func (p *peer) ready() bool { return len(p.out) < cap(p.out) }

func (p *peer) next() (inbound, bool) {
	select {
	case in := <-p.inbox:
		return in, true
	default:
		return inbound{}, false
	}
}

// send queues one complete frame. It never blocks; a full outbox drops the frame.
func (p *peer) send(ev protocol.Event) bool {
	frame, _ := ev.MarshalBinary()
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// close stops the read pump and lets the write pump flush what is queued
// before it closes the connection.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		close(p.out)
		if !p.started {
			_ = p.conn.Close()
		}
	})
}
