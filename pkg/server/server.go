package server

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-mclib/imageonmap/pkg/delivery"
	"github.com/go-mclib/imageonmap/pkg/tui"
	jp "github.com/go-mclib/protocol/java_protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned for work posted to a server whose event loop exited.
var ErrStopped = errors.New("server stopped")

type Server struct {
	// shown in the console title
	Name    string
	Address string

	// TUI
	Interactive bool
	MaxLogLines int

	Logger        *logrus.Logger
	SendQueueSize int
	// LogFile keeps receiving log output after the console takes over
	// stdout in interactive mode.
	LogFile io.Writer

	// modules
	modules       []Module
	modulesByName map[string]Module
	handlers      []Handler
	commands      map[string]*Command

	sessMu   sync.RWMutex
	sessions map[uuid.UUID]*Session

	// event loop
	events  chan func()
	stopped chan struct{}
	stop    sync.Once

	cancelMu   sync.Mutex
	cancel     context.CancelFunc
	tuiProgram *tea.Program
}

// New creates a server. Register modules before calling Run.
func New(name string) *Server {
	return &Server{
		Name:          name,
		SendQueueSize: 256,
		Logger:        logrus.StandardLogger(),
		modulesByName: make(map[string]Module),
		commands:      make(map[string]*Command),
		sessions:      make(map[uuid.UUID]*Session),
		events:        make(chan func(), 1024),
		stopped:       make(chan struct{}),
	}
}

// Register adds a module to the server. Panics on duplicate name.
func (s *Server) Register(m Module) {
	if _, exists := s.modulesByName[m.Name()]; exists {
		panic("module already registered: " + m.Name())
	}
	s.modules = append(s.modules, m)
	s.modulesByName[m.Name()] = m
	m.Init(s)
	if cp, ok := m.(CommandProvider); ok {
		for _, cmd := range cp.Commands() {
			s.registerCommand(cmd)
		}
	}
}

// Module returns a registered module by name, or nil.
func (s *Server) Module(name string) Module {
	return s.modulesByName[name]
}

// RegisterHandler appends a lightweight packet callback (escape hatch).
func (s *Server) RegisterHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Console returns the sender used for commands typed by the operator.
func (s *Server) Console() CommandSender {
	return consoleSender{logger: s.Logger}
}

// Connect opens a session for a player whose connection was accepted. The
// player is not considered joined until Join is called.
func (s *Server) Connect(name string, t Transport) *Session {
	queueSize := s.SendQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	sess := newSession(name, t, queueSize, s.Logger)

	s.sessMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessMu.Unlock()

	s.Logger.Debugf("%s connected", sess)
	return sess
}

// Sessions returns the open sessions sorted by player name.
func (s *Server) Sessions() []*Session {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// FindSession returns the open session of the named player, ignoring case.
func (s *Server) FindSession(name string) *Session {
	id := delivery.IdentityOf(name)
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Identity() == id {
			return sess
		}
	}
	return nil
}

// HandlePacket dispatches an inbound packet on the event loop.
func (s *Server) HandlePacket(sess *Session, pkt *jp.WirePacket) error {
	return s.post(func() {
		for _, m := range s.modules {
			m.HandlePacket(sess, pkt)
		}
		for _, h := range s.handlers {
			h(s, sess, pkt)
		}
	})
}

// Join notifies modules that the player finished joining.
func (s *Server) Join(sess *Session) error {
	return s.post(func() {
		s.Logger.Infof("%s joined the game", sess.Name())
		for _, m := range s.modules {
			if jh, ok := m.(JoinHandler); ok {
				jh.OnJoin(sess)
			}
		}
	})
}

// Quit notifies modules that the player left, then closes the session.
func (s *Server) Quit(sess *Session) error {
	return s.post(func() {
		s.Logger.Infof("%s left the game", sess.Name())
		for _, m := range s.modules {
			if qh, ok := m.(QuitHandler); ok {
				qh.OnQuit(sess)
			}
		}
		s.sessMu.Lock()
		delete(s.sessions, sess.ID)
		s.sessMu.Unlock()
		if err := sess.Close(); err != nil {
			s.Logger.WithError(err).Warnf("closing %s", sess)
		}
	})
}

// Dispatch runs a command line for sender on the event loop.
func (s *Server) Dispatch(sender CommandSender, line string) error {
	return s.post(func() { s.execute(sender, line) })
}

// SendCommand runs a console command. Satisfies tui.ServerInterface.
func (s *Server) SendCommand(cmd string) error {
	return s.Dispatch(s.Console(), cmd)
}

// Broadcast sends a chat line to every player. Satisfies tui.ServerInterface.
func (s *Server) Broadcast(msg string) error {
	var errs []error
	for _, sess := range s.Sessions() {
		if err := sess.SendMessage("[Server] " + msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetName returns the server name (satisfies tui.ServerInterface).
func (s *Server) GetName() string { return s.Name }

// GetAddress returns the admin address (satisfies tui.ServerInterface).
func (s *Server) GetAddress() string { return s.Address }

// GetMaxLogLines returns the maximum log lines setting (satisfies tui.ServerInterface).
func (s *Server) GetMaxLogLines() int { return s.MaxLogLines }

// Do runs fn on the event loop and waits for it to finish.
func (s *Server) Do(fn func()) error {
	done := make(chan struct{})
	if err := s.post(func() { fn(); close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}

// Shutdown stops a running server.
func (s *Server) Shutdown() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Run enables the modules and serves events until ctx is done or Shutdown is
// called. Modules are disabled in reverse registration order on exit.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()

	if s.Interactive {
		tuiProgram, writer := tui.Start(s)
		s.tuiProgram = tuiProgram
		if s.LogFile != nil {
			writer = io.MultiWriter(writer, s.LogFile)
		}
		s.Logger.SetOutput(writer)

		defer func() {
			if s.tuiProgram != nil {
				s.tuiProgram.Quit()
				s.tuiProgram = nil
			}
		}()

		tuiDone := make(chan error, 1)
		go func() {
			_, err := tuiProgram.Run()
			tuiDone <- err
		}()

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- s.serve(ctx)
		}()

		select {
		case err := <-tuiDone:
			cancel()
			if serveErr := <-serverDone; serveErr != nil {
				return serveErr
			}
			return err
		case err := <-serverDone:
			return err
		}
	}

	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) error {
	defer s.stop.Do(func() { close(s.stopped) })

	// reset all modules
	for _, m := range s.modules {
		m.Reset()
	}
	for _, m := range s.modules {
		if e, ok := m.(Enabler); ok {
			if err := e.Enable(); err != nil {
				s.Logger.WithError(err).Errorf("enabling module %s", m.Name())
			}
		}
	}
	s.Logger.Infof("%s started with %d modules", s.Name, len(s.modules))
	tui.EnableInput(s.tuiProgram)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.shutdown()
			return nil
		case ev := <-s.events:
			ev()
		}
	}
}

// drain runs events that were queued before the loop was asked to stop.
func (s *Server) drain() {
	for {
		select {
		case ev := <-s.events:
			ev()
		default:
			return
		}
	}
}

func (s *Server) shutdown() {
	s.Logger.Infof("stopping %s", s.Name)
	for _, sess := range s.Sessions() {
		if err := sess.Close(); err != nil {
			s.Logger.WithError(err).Warnf("closing %s", sess)
		}
	}
	for _, m := range slices.Backward(s.modules) {
		if d, ok := m.(Disabler); ok {
			if err := d.Disable(); err != nil {
				s.Logger.WithError(err).Errorf("disabling module %s", m.Name())
			}
		}
	}
}

func (s *Server) post(fn func()) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}
