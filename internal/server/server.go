package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
	"github.com/skypro1111/mjpeg-streamer/internal/session"
	"github.com/skypro1111/mjpeg-streamer/internal/source"
)

var (
	// ErrServerStopped is returned when starting a server that has already been stopped
	ErrServerStopped = errors.New("server has been stopped")

	// ErrSessionNotFound is returned for unknown session IDs
	ErrSessionNotFound = errors.New("session not found")
)

const (
	// Backlog is the accept queue length of the streaming listener
	Backlog = 10

	// maxAcceptDelay caps the backoff after transient accept errors
	maxAcceptDelay = time.Second
)

// Options configures what a server streams and how fast
type Options struct {
	Source      source.Source
	Interval    time.Duration
	SendTimeout time.Duration
}

// ServerConfig is the endpoint a Start call binds to
type ServerConfig struct {
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`
}

// Address returns the host:port form of the endpoint
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Server accepts viewer connections and runs one session per connection
type Server struct {
	options  Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *session.Registry

	// Lifecycle state
	config       *ServerConfig
	listener     net.Listener
	cancel       context.CancelFunc
	acceptorDone chan struct{}
	startTime    time.Time
	stopping     bool
	stopped      bool
	onStop       func(*Server)
	mu           sync.Mutex
}

// Status is a monitoring snapshot of the server
type Status struct {
	Running        bool          `json:"running"`
	Address        string        `json:"address,omitempty"`
	Interval       string        `json:"interval"`
	FPS            float64       `json:"fps"`
	SendTimeout    string        `json:"send_timeout"`
	ActiveSessions int           `json:"active_sessions"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	Uptime         time.Duration `json:"uptime_ns"`
}

// New creates a stopped server
func New(opts Options, logger *slog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		options:  opts,
		logger:   logger,
		metrics:  m,
		registry: session.NewRegistry(m),
	}
}

// Start binds the listener and launches the acceptor goroutine.
// It returns immediately; calling Start on a running server keeps the original endpoint.
func (s *Server) Start(address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.stopping {
		return ErrServerStopped
	}

	if s.runningLocked() {
		s.logger.Warn("Streaming server already running, ignoring start",
			slog.String("address", s.config.Address()),
			slog.String("requested", net.JoinHostPort(address, strconv.Itoa(port))),
		)
		return nil
	}

	if s.options.Source == nil {
		return fmt.Errorf("cannot start streaming server without a frame source")
	}

	cfg := &ServerConfig{BindAddress: address, Port: port}
	ln, err := listenTCP(cfg.Address(), Backlog)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.config = cfg
	s.listener = ln
	s.cancel = cancel
	s.acceptorDone = done
	s.startTime = time.Now()

	go s.acceptLoop(ctx, cancel, ln, s.options.Source, done)

	s.metrics.RecordServerStart()
	s.logger.Info("Streaming server started",
		slog.String("address", ln.Addr().String()),
		slog.Duration("interval", s.options.Interval),
		slog.Duration("send_timeout", s.options.SendTimeout),
	)

	return nil
}

// Stop closes the listener and waits for the acceptor to tear down every
// remaining session. It does not wait for session goroutines to exit.
// After Stop the server cannot be restarted.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopping || !s.runningLocked() {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	ln, cancel, done := s.listener, s.cancel, s.acceptorDone
	s.mu.Unlock()

	s.logger.Info("Stopping streaming server...")

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
	}
	cancel()
	<-done

	s.mu.Lock()
	s.listener = nil
	s.cancel = nil
	s.acceptorDone = nil
	s.options.Source = nil
	s.stopped = true
	s.stopping = false
	onStop := s.onStop
	s.mu.Unlock()

	s.metrics.RecordServerStop()
	s.logger.Info("Streaming server stopped",
		slog.Duration("uptime", time.Since(s.startTime)),
	)

	if onStop != nil {
		onStop(s)
	}
}

// IsRunning reports whether the acceptor goroutine is alive
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Server) runningLocked() bool {
	if s.acceptorDone == nil {
		return false
	}
	select {
	case <-s.acceptorDone:
		return false
	default:
		return true
	}
}

// Addr returns the listener address, or nil when not running
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil || !s.runningLocked() {
		return nil
	}
	return s.listener.Addr()
}

// Config returns the endpoint of the current or last Start call
func (s *Server) Config() (ServerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return ServerConfig{}, false
	}
	return *s.config, true
}

// SessionCount returns the number of registered sessions
func (s *Server) SessionCount() int {
	return s.registry.Len()
}

// Sessions returns monitoring snapshots of all registered sessions
func (s *Server) Sessions() []session.Info {
	sessions := s.registry.Snapshot()
	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

// Session returns the snapshot of one session
func (s *Server) Session(id string) (session.Info, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return session.Info{}, err
	}
	return sess.Info(), nil
}

// Kick closes one viewer connection; the session deregisters itself
func (s *Server) Kick(id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	s.logger.Info("Kicking viewer session",
		slog.String("session_id", sess.ID.String()),
		slog.String("remote_addr", sess.RemoteAddr),
	)
	return sess.Close()
}

func (s *Server) lookup(id string) (*session.Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrSessionNotFound, id)
	}
	sess, exists := s.registry.Get(parsed)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Status returns a monitoring snapshot of the server
func (s *Server) Status() Status {
	s.mu.Lock()
	running := s.runningLocked()
	status := Status{
		Running:        running,
		Interval:       s.options.Interval.String(),
		SendTimeout:    s.options.SendTimeout.String(),
		ActiveSessions: s.registry.Len(),
	}
	if s.options.Interval > 0 {
		status.FPS = float64(time.Second) / float64(s.options.Interval)
	}
	if running {
		status.Address = s.listener.Addr().String()
		started := s.startTime.UTC()
		status.StartedAt = &started
		status.Uptime = time.Since(s.startTime)
	}
	s.mu.Unlock()

	return status
}

// acceptLoop accepts connections until the listener fails or is closed
func (s *Server) acceptLoop(ctx context.Context, cancel context.CancelFunc, ln net.Listener, src source.Source, done chan struct{}) {
	defer close(done)
	defer s.teardownSessions()
	defer cancel()
	defer ln.Close()

	sessionConfig := session.Config{
		Interval:    s.options.Interval,
		SendTimeout: s.options.SendTimeout,
	}

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("Listener closed, acceptor exiting")
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > maxAcceptDelay {
					tempDelay = maxAcceptDelay
				}
				s.logger.Warn("Transient accept error, retrying",
					slog.String("error", err.Error()),
					slog.Duration("delay", tempDelay),
				)
				time.Sleep(tempDelay)
				continue
			}

			s.metrics.RecordAcceptError()
			s.logger.Error("Accept failed, shutting down acceptor",
				slog.String("error", err.Error()),
			)
			return
		}
		tempDelay = 0

		s.metrics.RecordConnectionAccepted()

		sess := session.New(conn, src, s.registry, sessionConfig, s.logger, s.metrics)
		sess.Register()

		s.logger.Info("Viewer connected",
			slog.String("session_id", sess.ID.String()),
			slog.String("remote_addr", sess.RemoteAddr),
			slog.Int("active_sessions", s.registry.Len()),
		)

		go sess.Run(ctx)
	}
}

// teardownSessions closes every registered session and empties the registry
func (s *Server) teardownSessions() {
	sessions := s.registry.Snapshot()
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			s.logger.Warn("Error closing viewer session",
				slog.String("session_id", sess.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	removed := s.registry.Clear()
	if len(sessions) > 0 || len(removed) > 0 {
		s.logger.Info("Closed remaining viewer sessions",
			slog.Int("closed", len(sessions)),
			slog.Int("deregistered", len(removed)),
		)
	}
}
