package server

import (
	"fmt"
	"sync"

	"github.com/go-mclib/imageonmap/pkg/delivery"
	jp "github.com/go-mclib/protocol/java_protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transport is the host side of a player connection.
type Transport interface {
	WritePacket(pkt *jp.WirePacket) error
	SendMessage(msg string) error
	Close() error
}

// CommandSender is anything a command can reply to.
type CommandSender interface {
	Name() string
	SendMessage(msg string) error
	HasPermission(perm string) bool
}

// Session is one connected player. Outgoing packets are queued and written by
// a dedicated goroutine in the order they were sent.
type Session struct {
	ID uuid.UUID

	name      string
	transport Transport
	logger    logrus.FieldLogger

	mu       sync.RWMutex
	closed   bool
	outgoing chan *jp.WirePacket
	done     chan struct{}

	permMu sync.RWMutex
	perms  map[string]bool
}

func newSession(name string, t Transport, queueSize int, logger logrus.FieldLogger) *Session {
	id := uuid.New()
	sess := &Session{
		ID:        id,
		name:      name,
		transport: t,
		logger:    logger.WithFields(logrus.Fields{"session": id.String(), "player": name}),
		outgoing:  make(chan *jp.WirePacket, queueSize),
		done:      make(chan struct{}),
		perms:     make(map[string]bool),
	}
	go sess.writeLoop()
	return sess
}

// Name returns the display name the player connected with.
func (s *Session) Name() string { return s.name }

// Identity returns the case-insensitive key of the player.
func (s *Session) Identity() delivery.Identity {
	return delivery.IdentityOf(s.name)
}

// SendPacket queues pkt for transmission. Packets sent after Close are dropped.
func (s *Session) SendPacket(pkt *jp.WirePacket) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debugf("dropping packet 0x%02x for closed session", pkt.PacketID)
		return
	}
	s.outgoing <- pkt
}

// SendMessage sends a chat line to the player.
func (s *Session) SendMessage(msg string) error {
	return s.transport.SendMessage(msg)
}

// Grant gives the player a permission node.
func (s *Session) Grant(perm string) {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	s.perms[perm] = true
}

func (s *Session) HasPermission(perm string) bool {
	s.permMu.RLock()
	defer s.permMu.RUnlock()
	return perm == "" || s.perms[perm]
}

// Close flushes queued packets and closes the transport. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.outgoing)
	s.mu.Unlock()

	<-s.done
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("%s (%s)", s.name, s.ID)
}

// outgoing queue worker
func (s *Session) writeLoop() {
	defer close(s.done)
	for pkt := range s.outgoing {
		if err := s.transport.WritePacket(pkt); err != nil {
			s.logger.Println("error writing packet from queue:", err)
		}
	}
}

var _ CommandSender = (*Session)(nil)
