package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
	"github.com/skypro1111/mjpeg-streamer/internal/mjpeg"
	"github.com/skypro1111/mjpeg-streamer/internal/source"
)

// DefaultSendTimeout bounds every blocking write to a viewer
const DefaultSendTimeout = 10 * time.Second

// State is the lifecycle stage of a session
type State int

// Session states, in order
const (
	StateConnected State = iota
	StateHeaderSent
	StateStreaming
	StateClosed
)

// String returns the human-readable state name
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateHeaderSent:
		return "header_sent"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds per-session pacing and timeout settings
type Config struct {
	// Interval is the fixed pause before every frame
	Interval time.Duration

	// SendTimeout is the write deadline applied to each header or frame write.
	// Zero disables the deadline.
	SendTimeout time.Duration
}

// Session streams frames to one viewer connection
type Session struct {
	ID         uuid.UUID
	RemoteAddr string
	StartedAt  time.Time

	conn     net.Conn
	src      source.Source
	cursor   source.Cursor
	registry *Registry
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Statistics
	state      State
	framesSent uint64
	bytesSent  uint64
	lastError  string
	mu         sync.RWMutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Info is a point-in-time view of a session for monitoring
type Info struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	FramesSent uint64    `json:"frames_sent"`
	BytesSent  uint64    `json:"bytes_sent"`
	LastError  string    `json:"last_error,omitempty"`
}

// New creates a session for an accepted connection.
// The session is not registered until Register is called.
func New(conn net.Conn, src source.Source, registry *Registry, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Session {
	id := uuid.New()
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &Session{
		ID:         id,
		RemoteAddr: remote,
		StartedAt:  time.Now(),
		conn:       conn,
		src:        src,
		registry:   registry,
		config:     cfg,
		logger: logger.With(
			slog.String("session_id", id.String()),
			slog.String("remote_addr", remote),
		),
		metrics: m,
		state:   StateConnected,
		done:    make(chan struct{}),
	}
}

// Register adds the session to its registry. Registering twice is a no-op.
func (s *Session) Register() bool {
	added := s.registry.Add(s)
	if !added {
		s.logger.Warn("Session already registered, skipping")
	}
	return added
}

// Run drives the session until the connection fails or ctx is done.
// It always leaves the session closed and deregistered.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSessionPanic()
			s.setError(fmt.Errorf("panic: %v", r))
			s.logger.Error("Recovered panic in session loop", slog.Any("panic", r))
		}
	}()

	cursor, err := s.src.Open()
	if err != nil {
		s.setError(err)
		s.logger.Error("Failed to open frame source", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()

	w := mjpeg.NewWriter(s.conn)

	s.armDeadline()
	if err := w.WriteStreamHeader(); err != nil {
		s.writeFailed("header", err)
		return
	}
	s.setState(StateHeaderSent)

	s.logger.Info("Stream header sent",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("send_timeout", s.config.SendTimeout),
	)

	s.setState(StateStreaming)

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Session stopping due to context cancellation")
			return
		case <-timer.C:
		}

		pullStart := time.Now()
		frame, err := cursor.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.RecordFramePullFailure()
			s.setError(err)
			s.logger.Error("Failed to pull frame", slog.String("error", err.Error()))
			return
		}
		s.metrics.RecordFramePulled(time.Since(pullStart).Seconds())

		writeStart := time.Now()
		s.armDeadline()
		if err := w.WriteFrame(frame.Data); err != nil {
			s.writeFailed("frame", err)
			return
		}
		s.metrics.RecordFrameSent(frame.Len(), time.Since(writeStart).Seconds())

		s.mu.Lock()
		s.framesSent++
		s.bytesSent += uint64(frame.Len())
		s.mu.Unlock()

		timer.Reset(s.config.Interval)
	}
}

// Close shuts the connection down. A running session observes the closed
// connection on its next write and tears itself down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = shutdownConn(s.conn)
	})
	return s.closeErr
}

// Done is closed once Run has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a monitoring snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		ID:         s.ID.String(),
		RemoteAddr: s.RemoteAddr,
		State:      s.state.String(),
		StartedAt:  s.StartedAt.UTC(),
		Duration:   time.Since(s.StartedAt).Round(time.Millisecond).String(),
		FramesSent: s.framesSent,
		BytesSent:  s.bytesSent,
		LastError:  s.lastError,
	}
}

// teardown closes everything the session owns and deregisters it
func (s *Session) teardown() {
	s.setState(StateClosed)

	if err := s.Close(); err != nil {
		s.logger.Debug("Error closing viewer connection", slog.String("error", err.Error()))
	}

	if s.registry.Remove(s) {
		s.mu.RLock()
		framesSent, bytesSent := s.framesSent, s.bytesSent
		s.mu.RUnlock()

		s.logger.Info("Session closed",
			slog.Duration("duration", time.Since(s.StartedAt)),
			slog.Uint64("frames_sent", framesSent),
			slog.Uint64("bytes_sent", bytesSent),
		)
	}

	s.closeCursor()
}

// closeCursor releases the frame cursor. The cursor belongs to the frame
// source, so a panic inside Close is contained here.
func (s *Session) closeCursor() {
	s.mu.RLock()
	cursor := s.cursor
	s.mu.RUnlock()
	if cursor == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSessionPanic()
			s.logger.Error("Recovered panic while closing frame cursor", slog.Any("panic", r))
		}
	}()

	if err := cursor.Close(); err != nil {
		s.logger.Warn("Error closing frame cursor", slog.String("error", err.Error()))
	}
}

func (s *Session) writeFailed(what string, err error) {
	kind := classifyWriteError(err)
	s.metrics.RecordWriteError(kind)
	s.setError(err)

	s.logger.Info("Viewer write failed, closing session",
		slog.String("stage", what),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

func (s *Session) armDeadline() {
	if s.config.SendTimeout <= 0 {
		return
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.SendTimeout)); err != nil {
		s.logger.Debug("Failed to set write deadline", slog.String("error", err.Error()))
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// shutdownConn half-closes the connection, then closes it.
// An already closed handle counts as closed.
func shutdownConn(conn net.Conn) error {
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		// A failed shutdown still falls through to the forced close below
		_ = hc.CloseWrite()
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// classifyWriteError maps a write failure to a metrics label
func classifyWriteError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return "closed"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNABORTED):
		return "reset"
	default:
		return "other"
	}
}
