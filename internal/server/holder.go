package server

import (
	"log/slog"
	"sync"

	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
)

// Holder keeps at most one live Server.
// The first Get constructs the instance; later calls return it unchanged until
// it is stopped, after which the next Get builds a fresh one.
type Holder struct {
	server  *Server
	logger  *slog.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// NewHolder creates an empty Holder
func NewHolder(logger *slog.Logger, m *metrics.Metrics) *Holder {
	return &Holder{
		logger:  logger,
		metrics: m,
	}
}

// Get returns the current server, constructing one from opts if none is live.
// opts are ignored when a server already exists.
func (h *Holder) Get(opts Options) *Server {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server != nil {
		return h.server
	}

	srv := New(opts, h.logger, h.metrics)
	srv.onStop = h.release
	h.server = srv

	h.logger.Debug("Created streaming server instance",
		slog.Duration("interval", opts.Interval),
	)
	return srv
}

// Current returns the live server or nil
func (h *Holder) Current() *Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.server
}

// release drops srv if it is still the held instance
func (h *Holder) release(srv *Server) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == srv {
		h.server = nil
	}
}
