package chat

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// acceptBacklog bounds connections accepted but not yet admitted by the loop.
const acceptBacklog = 16

type Server struct {
	cfg      Config
	logger   *slog.Logger
	table    *Table
	listener net.Listener

	conns  chan net.Conn
	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	stopOnce sync.Once
	pumps    sync.WaitGroup

	// closing is set under mu once Stop has begun; enqueue holds mu.RLock
	// while handing a connection over, so nothing lands in conns afterwards.
	mu      sync.RWMutex
	closing bool

	connected atomic.Int64
	slots     atomic.Int64
}

// connQueue is the slot 0 handle: readable while accepted connections wait.
type connQueue chan net.Conn

func (q connQueue) pending() bool { return len(q) > 0 }

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	s := &Server{
		cfg:    cfg,
		logger: logger,
		table:  NewTable(cfg),
		conns:  make(chan net.Conn, acceptBacklog),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.table.listener = connQueue(s.conns)
	s.publishStats()
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, lets the loop finish its tick and notify every
// client, then waits for all connection goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("shutting down")

		if s.listener != nil {
			s.listener.Close()
		}
		close(s.stopCh)

		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		if s.listener != nil {
			<-s.doneCh
		}
		s.closeQueued()
		s.pumps.Wait()

		s.logger.Info("shutdown complete")
	})
}

// closeQueued closes connections that were accepted but never admitted.
func (s *Server) closeQueued() {
	for {
		select {
		case conn := <-s.conns:
			_ = conn.Close()
		default:
			return
		}
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// The listener was closed by Stop.
			return
		}
		if !s.enqueue(conn) {
			return
		}
	}
}

// enqueue hands an accepted connection to the loop. It reports false once
// the server is stopping.
func (s *Server) enqueue(conn net.Conn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		_ = conn.Close()
		return false
	}
	select {
	case s.conns <- conn:
		s.poke()
		return true
	case <-s.stopCh:
		_ = conn.Close()
		return false
	}
}

// Stats is a point-in-time view of the table published after every tick.
type Stats struct {
	Connected int `json:"connected"`
	Slots     int `json:"slots"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Connected: int(s.connected.Load()),
		Slots:     int(s.slots.Load()),
	}
}
