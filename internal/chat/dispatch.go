package chat

import (
	"unicode/utf8"

	"github.com/andy6609/tickchat/internal/protocol"
)

// action handles one client event for the slot that sent it.
type action func(s *Server, slot int, ev protocol.Event)

type transition struct {
	state State
	code  protocol.Code
}

// transitions lists every (state, code) pair that does something other than
// the defaults chosen by lookup.
var transitions = map[transition]action{
	{StateAwaitingUsername, protocol.CodeUsernameSubmit}: (*Server).acceptUsername,
	{StateActive, protocol.CodeMessage}:                  (*Server).relayMessage,
}

// lookup returns the action for code arriving in state. A leave notice or an
// unknown code disconnects. Server-only codes are dropped, as are events that
// do not fit the sender's state.
func lookup(state State, code protocol.Code) action {
	if act, ok := transitions[transition{state, code}]; ok {
		return act
	}
	if code == protocol.CodeUserLeave || !code.Valid() {
		return (*Server).disconnect
	}
	if code.ServerOnly() {
		return (*Server).rejectServerOnly
	}
	return (*Server).ignore
}

func (s *Server) acceptUsername(slot int, ev protocol.Event) {
	name, err := s.validateUsername(ev.Text())
	if err != nil {
		s.logger.Info("username rejected", "slot", slot, "error", err)
		s.table.SendTo(slot, protocol.NewTextEvent(protocol.CodeUsernameRejected, protocol.ServerOriginator, err.Error()))
		return
	}

	s.table.setUsername(slot, name)
	s.table.SendTo(slot, usernameAcceptedEvent)
	s.table.RelayFrom(slot, protocol.NewTextEvent(protocol.CodeUserJoin, slot, name))
	s.table.SetState(slot, StateActive)

	s.logger.Info("user registered", "slot", slot, "username", name)
}

func (s *Server) validateUsername(raw string) (string, error) {
	name := Sanitize(raw)
	if name == "" || utf8.RuneCountInString(name) > s.cfg.MaxUsernameLength {
		return "", ErrUsernameInvalid
	}
	if s.table.usernameTaken(name) {
		return "", ErrUsernameTaken
	}
	return name, nil
}

func (s *Server) relayMessage(slot int, ev protocol.Event) {
	if p := s.table.peerAt(slot); p != nil && p.limiter != nil && !p.limiter.Allow() {
		s.logger.Debug("message rate exceeded", "slot", slot)
		return
	}
	s.table.RelayMessageFrom(slot, ev.Text())
}

// disconnect tells the other users that slot left and frees it.
func (s *Server) disconnect(slot int, _ protocol.Event) {
	name, named := s.table.Username(slot)
	if named {
		s.table.RelayFrom(slot, protocol.NewTextEvent(protocol.CodeUserLeave, slot, name))
	}
	s.logger.Info("user left", "slot", slot, "username", name)
	s.table.Close(slot)
}

// rejectServerOnly drops a code only the server may produce. A client copy of
// one is never trusted, whatever state the slot is in.
func (s *Server) rejectServerOnly(slot int, ev protocol.Event) {
	s.logger.Debug("dropped server-only code from client", "slot", slot, "code", ev.Code.String())
}

func (s *Server) ignore(slot int, ev protocol.Event) {
	s.logger.Debug("ignored event", "slot", slot, "state", s.table.State(slot).String(), "code", ev.Code.String())
}
