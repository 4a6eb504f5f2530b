package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming service
type Metrics struct {
	// Acceptor metrics
	ConnectionsAccepted prometheus.Counter
	AcceptErrors        prometheus.Counter
	ServerStarts        prometheus.Counter
	ServerStops         prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram
	SessionPanics   prometheus.Counter
	WriteErrors     *prometheus.CounterVec

	// Frame metrics
	FramesSent        prometheus.Counter
	BytesSent         prometheus.Counter
	FrameSize         prometheus.Histogram
	FrameWriteTime    prometheus.Histogram
	FramePullTime     prometheus.Histogram
	FramePullFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Acceptor metrics
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_connections_accepted_total",
			Help: "Total number of viewer connections accepted",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_accept_errors_total",
			Help: "Total number of accept failures on the listening socket",
		}),
		ServerStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_server_starts_total",
			Help: "Total number of streaming server starts",
		}),
		ServerStops: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_server_stops_total",
			Help: "Total number of streaming server stops",
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mjpeg_active_sessions",
			Help: "Current number of registered viewer sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_sessions_opened_total",
			Help: "Total number of viewer sessions registered",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_sessions_closed_total",
			Help: "Total number of viewer sessions deregistered",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mjpeg_session_duration_seconds",
			Help:    "Lifetime of viewer sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		SessionPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_session_panics_total",
			Help: "Total number of panics recovered inside session loops",
		}),
		WriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mjpeg_session_write_errors_total",
			Help: "Total number of session-terminating write failures",
		}, []string{"kind"}),

		// Frame metrics
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_frames_sent_total",
			Help: "Total number of frames written to viewers",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_frame_bytes_sent_total",
			Help: "Total number of frame payload bytes written to viewers",
		}),
		FrameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mjpeg_frame_size_bytes",
			Help:    "Size of frame payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		FrameWriteTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mjpeg_frame_write_duration_seconds",
			Help:    "Time spent writing a frame to the socket",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		FramePullTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mjpeg_frame_pull_duration_seconds",
			Help:    "Time spent pulling a frame from the source",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		FramePullFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_frame_pull_failures_total",
			Help: "Total number of frame source failures",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mjpeg_http_requests_total",
			Help: "Total number of admin HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mjpeg_http_request_duration_seconds",
			Help:    "Duration of admin HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mjpeg_http_errors_total",
			Help: "Total number of admin HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionAccepted increments the accepted connections counter
func (m *Metrics) RecordConnectionAccepted() {
	m.ConnectionsAccepted.Inc()
}

// RecordAcceptError increments the accept errors counter
func (m *Metrics) RecordAcceptError() {
	m.AcceptErrors.Inc()
}

// RecordServerStart increments the server starts counter
func (m *Metrics) RecordServerStart() {
	m.ServerStarts.Inc()
}

// RecordServerStop increments the server stops counter
func (m *Metrics) RecordServerStop() {
	m.ServerStops.Inc()
}

// SetActiveSessions sets the current number of registered sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionOpened increments the sessions opened counter
func (m *Metrics) RecordSessionOpened() {
	m.SessionsOpened.Inc()
}

// RecordSessionClosed increments the sessions closed counter and records duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionPanic increments the recovered panics counter
func (m *Metrics) RecordSessionPanic() {
	m.SessionPanics.Inc()
}

// RecordWriteError records a session-terminating write failure of the given kind
func (m *Metrics) RecordWriteError(kind string) {
	m.WriteErrors.WithLabelValues(kind).Inc()
}

// RecordFrameSent records a frame written to a viewer
func (m *Metrics) RecordFrameSent(sizeBytes int, writeSeconds float64) {
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(sizeBytes))
	m.FrameSize.Observe(float64(sizeBytes))
	m.FrameWriteTime.Observe(writeSeconds)
}

// RecordFramePulled records the time spent waiting on the frame source
func (m *Metrics) RecordFramePulled(pullSeconds float64) {
	m.FramePullTime.Observe(pullSeconds)
}

// RecordFramePullFailure increments the source failures counter
func (m *Metrics) RecordFramePullFailure() {
	m.FramePullFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
