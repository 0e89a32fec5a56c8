package hmdlink

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
	"github.com/motionreality/hmdlink/internal/hpipe"
)

// ServerConfig is the configuration for a [Server].
type ServerConfig struct {
	// Directory holding the endpoint socket.
	// Empty selects the OS temporary directory.
	SocketDir string

	// UseSecondaryEndpoint binds the reserved secondary endpoint
	// instead of the primary one.
	// No current client connects to the secondary;
	// the switch exists for future dual-server operation.
	UseSecondaryEndpoint bool

	// The device shared textures are imported onto.
	Device hgpu.Device

	// OpenPipeline creates the display pipeline.
	// It is called lazily on a session's first need
	// and again after a client re-registers buffers.
	OpenPipeline hmd.Opener
}

// validate panics if there are any illegal settings in the configuration.
func (c ServerConfig) validate() {
	// If there are multiple reasons we could panic,
	// collect them all in one go
	// so we can give a maximally helpful error.
	var panicErrs error

	if c.Device == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("ServerConfig.Device may not be nil"),
		)
	}

	if c.OpenPipeline == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("ServerConfig.OpenPipeline may not be nil"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

func (c ServerConfig) endpoint() hpipe.Endpoint {
	if c.UseSecondaryEndpoint {
		return hpipe.Secondary
	}
	return hpipe.Primary
}

// Server owns one pipe endpoint and serves clients on it,
// one connection at a time.
//
// Run blocks for the server's whole life.
// Shutdown may be called from any goroutine — typically a signal
// handler — and ends Run by closing the endpoint,
// which aborts whatever I/O is in flight.
type Server struct {
	log *slog.Logger
	cfg ServerConfig

	mu           sync.Mutex
	shuttingDown bool
	listener     *hpipe.Listener
	conn         *hpipe.Conn

	// Closed when Run returns, for Wait.
	done chan struct{}
}

// NewServer returns an unstarted server.
// It panics if the configuration is invalid.
func NewServer(log *slog.Logger, cfg ServerConfig) *Server {
	cfg.validate()
	return &Server{
		log:  log,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Run binds the endpoint and serves clients until [Server.Shutdown].
//
// Each accepted connection gets a fresh session; when the session ends —
// client disconnect, protocol error, or pipeline failure — its resources
// are torn down and the server goes back to accepting.
// A failure to bind the endpoint is fatal and returned.
func (s *Server) Run() error {
	defer close(s.done)

	listener, err := hpipe.Listen(s.cfg.SocketDir, s.cfg.endpoint())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Serving render clients", "endpoint", listener.Path())

	for {
		s.log.Info("Waiting for a connection")
		conn, err := listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				return nil
			}
			return err
		}

		if !s.adoptConn(conn) {
			// Shutdown raced the accept.
			conn.Close()
			return nil
		}

		log := s.log.With("session", uuid.NewString())
		log.Info("Accepted connection")

		sess := newSession(log, conn, s.cfg.Device, s.cfg.OpenPipeline)
		err = sess.serve()
		sess.teardown()

		s.dropConn()
		conn.Close()

		switch {
		case errors.Is(err, io.EOF):
			log.Info("Client disconnected")
		case errors.Is(err, net.ErrClosed) && s.isShuttingDown():
			log.Info("Session ended by shutdown")
		default:
			log.Warn("Session failed", "err", err)
		}

		if s.isShuttingDown() {
			return nil
		}
	}
}

// Wait blocks until Run has returned.
//
// The usual arrangement runs the accept loop on its own goroutine
// and parks the main goroutine here while a signal handler
// calls [Server.Shutdown].
func (s *Server) Wait() {
	<-s.done
}

// Shutdown stops the server.
// Safe to call from any goroutine, and more than once.
// Any session in flight is torn down as if its client disconnected.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return
	}
	s.shuttingDown = true

	s.log.Info("Server shutting down")

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// adoptConn records the live session connection so Shutdown can
// abort its blocking I/O. Reports false if shutdown already started.
func (s *Server) adoptConn(conn *hpipe.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.conn = conn
	return true
}

func (s *Server) dropConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
}
