package server

import jp "github.com/go-mclib/protocol/java_protocol"

// Module is a pluggable server component.
type Module interface {
	// Name returns a unique key for this module (e.g. "imagemap").
	Name() string
	// Init is called once when the module is registered on a server.
	// Store the *Server reference for later use.
	Init(s *Server)
	// HandlePacket is called on the event loop for every inbound packet.
	HandlePacket(sess *Session, pkt *jp.WirePacket)
	// Reset is called on restart to clear module state.
	Reset()
}

// JoinHandler is optionally implemented by modules that act once a player
// finished the join sequence.
type JoinHandler interface {
	OnJoin(sess *Session)
}

// QuitHandler is optionally implemented by modules that act when a player
// leaves.
type QuitHandler interface {
	OnQuit(sess *Session)
}

// Enabler is optionally implemented by modules that load state before the
// event loop starts.
type Enabler interface {
	Enable() error
}

// Disabler is optionally implemented by modules that persist state after the
// event loop stops.
type Disabler interface {
	Disable() error
}

// CommandProvider is optionally implemented by modules that expose commands.
type CommandProvider interface {
	Commands() []*Command
}

// Handler is a lightweight packet callback for one-off matching.
type Handler func(s *Server, sess *Session, pkt *jp.WirePacket)
