package chat

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/andy6609/tickchat/internal/protocol"
)

// run is the tick loop. It is the only goroutine that touches the table.
func (s *Server) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.shutdown()
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.tick()
	}
}

// tick runs one poll-and-dispatch pass over the table.
func (s *Server) tick() {
	s.table.Poll()
	s.introduceUsers()
	s.handleUsersInput()
	s.checkNewUsers()
	s.publishStats()

	// One event per slot per tick; come back right away for the rest.
	if s.table.pendingInput() {
		s.poke()
	}
}

// poke schedules a tick without waiting for the ticker.
func (s *Server) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// introduceUsers asks every freshly connected slot that can take output for
// its username.
func (s *Server) introduceUsers() {
	for slot := ServerSlot + 1; slot < s.table.Size(); slot++ {
		if s.table.State(slot) != StateConnected || !s.table.Writable(slot) {
			continue
		}
		s.table.SendTo(slot, usernameRequestEvent)
		s.table.SetState(slot, StateAwaitingUsername)
	}
}

func (s *Server) handleUsersInput() {
	for slot := ServerSlot + 1; slot < s.table.Size(); slot++ {
		if !s.table.Readable(slot) {
			continue
		}
		p := s.table.peerAt(slot)
		if p == nil {
			continue
		}
		in, ok := p.next()
		if !ok {
			continue
		}
		s.dispatch(slot, in)
	}
}

func (s *Server) dispatch(slot int, in inbound) {
	if in.err != nil {
		var oversized *protocol.OversizedError
		if errors.As(in.err, &oversized) {
			OversizedPayloads.Inc()
			s.logger.Warn("oversized content rejected", "slot", slot, "declared", oversized.Header.ContentLength, "max", oversized.Max)
			s.table.SendTo(slot, oversizedEvent)
			return
		}
		if !errors.Is(in.err, io.EOF) {
			s.logger.Warn("read failed", "slot", slot, "error", in.err)
		}
		s.disconnect(slot, in.event)
		return
	}

	start := time.Now()
	code := in.event.Code
	label := code.String()
	if !code.Valid() {
		label = protocol.CodeUndefined.String()
	}

	lookup(s.table.State(slot), code)(s, slot, in.event)

	EventsTotal.WithLabelValues(label).Inc()
	EventProcessingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

// checkNewUsers admits at most one queued connection per tick.
func (s *Server) checkNewUsers() {
	if !s.table.Readable(ServerSlot) {
		return
	}
	select {
	case conn := <-s.conns:
		s.admit(conn)
	default:
	}
}

func (s *Server) admit(conn net.Conn) {
	p := newPeer(conn, s.cfg)
	slot, err := s.table.Add(p)
	if err != nil {
		RejectedConnections.Inc()
		s.logger.Warn("connection rejected", "addr", p.addr, "error", err)
		s.pumps.Add(1)
		go func() {
			defer s.pumps.Done()
			rejectConn(conn, s.cfg.WriteTimeout)
		}()
		return
	}

	// Best-effort: a newcomer that misses the list still gets the handshake.
	if ev, ok := s.table.userListEvent(); ok {
		p.send(ev)
	}
	p.start(uint64(s.cfg.MaxContentLength), s.poke, &s.pumps)

	s.logger.Info("client connected", "slot", slot, "addr", p.addr, "session", p.session)
}

func (s *Server) shutdown() {
	s.table.Shutdown()
	s.closeQueued()
	s.publishStats()
}

func (s *Server) publishStats() {
	connected := s.table.Count() - 1
	s.connected.Store(int64(connected))
	s.slots.Store(int64(s.table.Size()))
	ConnectedClients.Set(float64(connected))
	TableSlots.Set(float64(s.table.Size()))
}
