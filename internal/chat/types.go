package chat

import "github.com/andy6609/tickchat/internal/protocol"

// State is the lifecycle position of a connection slot.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateAwaitingUsername
	StateActive
	// StateServer marks slot 0, which holds the listening handle.
	StateServer
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateAwaitingUsername:
		return "awaiting_username"
	case StateActive:
		return "active"
	case StateServer:
		return "server"
	}
	return "unknown"
}

// ServerSlot is the reserved slot of the listening handle.
const ServerSlot = 0

// Slot is one entry of the connection table. A blank slot has a nil peer and
// StateUninitialized.
type Slot struct {
	peer     *peer
	username string
	named    bool
	state    State

	// Readiness from the last Poll; never carried across ticks.
	readable bool
	writable bool
}

func (s *Slot) blank() bool { return s.state == StateUninitialized && s.peer == nil }

const (
	usernameRequestText  = "Enter username to begin chatting"
	usernameAcceptedText = "Username set"
	shutdownText         = "Server is shutting down"
	connectionFailedText = "Server is unable to handle new connections at the moment."
	serverUsername       = "Server"
)

var (
	usernameRequestEvent  = protocol.NewTextEvent(protocol.CodeUsernameRequest, protocol.ServerOriginator, usernameRequestText)
	usernameAcceptedEvent = protocol.NewTextEvent(protocol.CodeUsernameAccepted, protocol.ServerOriginator, usernameAcceptedText)
	shutdownEvent         = protocol.NewTextEvent(protocol.CodeServerShutdown, protocol.ServerOriginator, shutdownText)
	connectionFailedEvent = protocol.NewTextEvent(protocol.CodeConnectionFailed, protocol.ServerOriginator, connectionFailedText)
	oversizedEvent        = protocol.Event{Code: protocol.CodeOversizedContent, Originator: protocol.ServerOriginator}
)

var (
	// ErrTableFull is returned by Table.Add when the table cannot grow.
	ErrTableFull       = errorString("table_full")
	ErrUsernameTaken   = errorString("username_taken")
	ErrUsernameInvalid = errorString("username_invalid")
)

type errorString string

func (e errorString) Error() string { return string(e) }
