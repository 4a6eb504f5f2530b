package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/mjpeg-streamer/internal/config"
	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
	"github.com/skypro1111/mjpeg-streamer/internal/session"
)

const (
	serviceName    = "mjpeg-streamer"
	serviceVersion = "1.0.0"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// HTTPServer provides admin HTTP API endpoints for monitoring and control
type HTTPServer struct {
	server   *http.Server
	engine   *gin.Engine
	logger   *slog.Logger
	config   *config.Config
	holder   *Holder
	options  Options
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// HTTPServerConfig contains admin HTTP server configuration
type HTTPServerConfig struct {
	Address string
	Port    int
	PProf   bool

	// Gatherer backs the /metrics endpoint; nil uses the default registry
	Gatherer prometheus.Gatherer
}

// NewHTTPServer creates the admin API server.
// opts are used to build a fresh streaming server when one is started through the API.
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	holder *Holder, opts Options, m *metrics.Metrics) *HTTPServer {

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		holder:    holder,
		options:   opts,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.engine = gin.New()
	h.engine.Use(h.withLogging(), h.withMetrics(), gin.CustomRecovery(h.handleRecovery))
	if cfg.PProf {
		pprof.Register(h.engine)
	}
	h.setupRoutes()

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      h.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures admin API routes
func (h *HTTPServer) setupRoutes() {
	h.engine.GET("/", h.handleRoot)
	h.engine.GET("/health", h.handleHealth)
	h.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := h.engine.Group("/api/v1")
	{
		serverAPI := api.Group("/server")
		{
			serverAPI.GET("", h.handleServerStatus)
			serverAPI.POST("/start", h.handleServerStart)
			serverAPI.POST("/stop", h.handleServerStop)
		}

		sessionsAPI := api.Group("/sessions")
		{
			sessionsAPI.GET("", h.handleSessions)
			sessionsAPI.GET("/:id", h.handleSessionDetail)
			sessionsAPI.DELETE("/:id", h.handleSessionKick)
		}

		api.GET("/config", h.handleConfig)
	}

	h.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler returns the HTTP handler serving the admin API
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

// Start binds the admin listener and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// withMetrics records request counts, durations and errors
func (h *HTTPServer) withMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), time.Since(startTime).Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(c.Request.Method, endpoint, errorType)
		}
	}
}

// withLogging logs each request through slog
func (h *HTTPServer) withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		h.logger.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(startTime)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

func (h *HTTPServer) handleRecovery(c *gin.Context, recovered any) {
	h.logger.Error("Panic in HTTP handler",
		slog.String("path", c.Request.URL.Path),
		slog.Any("panic", recovered),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// handleRoot returns API documentation
func (h *HTTPServer) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "MJPEG Streaming Service",
		"version": serviceVersion,
		"endpoints": gin.H{
			"GET /":                        "API documentation",
			"GET /health":                  "Service health check",
			"GET /metrics":                 "Prometheus metrics",
			"GET /api/v1/server":           "Streaming server status",
			"POST /api/v1/server/start":    "Start the streaming server",
			"POST /api/v1/server/stop":     "Stop the streaming server",
			"GET /api/v1/sessions":         "List viewer sessions",
			"GET /api/v1/sessions/{id}":    "Get viewer session details",
			"DELETE /api/v1/sessions/{id}": "Disconnect a viewer",
			"GET /api/v1/config":           "Get service configuration",
		},
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(c *gin.Context) {
	streaming := gin.H{"status": "stopped", "active_sessions": 0}
	if srv := h.holder.Current(); srv != nil && srv.IsRunning() {
		status := srv.Status()
		streaming = gin.H{
			"status":          "running",
			"address":         status.Address,
			"active_sessions": status.ActiveSessions,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": gin.H{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": gin.H{
			"streaming_server": streaming,
		},
	})
}

// handleServerStatus implements GET /api/v1/server
func (h *HTTPServer) handleServerStatus(c *gin.Context) {
	srv := h.holder.Current()
	if srv == nil {
		c.JSON(http.StatusOK, Status{Running: false})
		return
	}
	c.JSON(http.StatusOK, srv.Status())
}

// handleServerStart implements POST /api/v1/server/start
func (h *HTTPServer) handleServerStart(c *gin.Context) {
	srv := h.holder.Get(h.options)
	if err := srv.Start(h.config.Server.BindAddress, h.config.Server.Port); err != nil {
		h.logger.Error("Failed to start streaming server via API", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, srv.Status())
}

// handleServerStop implements POST /api/v1/server/stop
func (h *HTTPServer) handleServerStop(c *gin.Context) {
	if srv := h.holder.Current(); srv != nil {
		srv.Stop()
	}
	c.JSON(http.StatusOK, Status{Running: false})
}

// handleSessions implements GET /api/v1/sessions
func (h *HTTPServer) handleSessions(c *gin.Context) {
	sessions := []session.Info{}
	if srv := h.holder.Current(); srv != nil {
		sessions = srv.Sessions()
	}

	c.JSON(http.StatusOK, gin.H{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

// handleSessionDetail implements GET /api/v1/sessions/:id
func (h *HTTPServer) handleSessionDetail(c *gin.Context) {
	srv := h.holder.Current()
	if srv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
		return
	}

	info, err := srv.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleSessionKick implements DELETE /api/v1/sessions/:id
func (h *HTTPServer) handleSessionKick(c *gin.Context) {
	srv := h.holder.Current()
	if srv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
		return
	}

	if err := srv.Kick(c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": c.Param("id")})
}

// handleConfig implements GET /api/v1/config
func (h *HTTPServer) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.config)
}
