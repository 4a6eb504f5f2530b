package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/skypro1111/mjpeg-streamer/internal/config"
	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
	"github.com/skypro1111/mjpeg-streamer/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "mjpeg-streamer"
	serviceVersion    = "1.0.0"
)

func init() {
	cobra.MousetrapHelpText = ""
}

func main() {
	var configPath string

	command := &cobra.Command{
		Use:           serviceName,
		Short:         "MJPEG multipart-over-TCP streaming server",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			return run(cfg, configPath)
		},
	}
	command.Flags().StringVarP(&configPath, "config", "f", defaultConfigPath, "Path to configuration file")

	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, falling back to defaults when the
// default path does not exist
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("failed to load configuration: %w", err)
}

func run(cfg *config.Config, configPath string) error {
	if cfg.Banner.Enabled {
		printBanner(cfg.Banner)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("port", cfg.Server.Port),
		slog.Duration("send_timeout", cfg.Server.GetSendTimeoutDuration()),
		slog.Int("fps", cfg.Stream.FPS),
		slog.String("source", cfg.Stream.Source),
		slog.String("resolution", cfg.Stream.Resolution),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	src, err := cfg.Stream.NewSource()
	if err != nil {
		logger.Error("Failed to create frame source", slog.String("error", err.Error()))
		return err
	}

	opts := server.Options{
		Source:      src,
		Interval:    cfg.Stream.GetFrameInterval(),
		SendTimeout: cfg.Server.GetSendTimeoutDuration(),
	}

	holder := server.NewHolder(logger, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Address: cfg.HTTP.Address,
			Port:    cfg.HTTP.Port,
			PProf:   cfg.HTTP.PProf,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, cfg, holder, opts, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
			slog.Bool("pprof", cfg.HTTP.PProf),
		)
	}

	if err := holder.Get(opts).Start(cfg.Server.BindAddress, cfg.Server.Port); err != nil {
		logger.Error("Failed to start streaming server", slog.String("error", err.Error()))
		return err
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			if srv := holder.Current(); srv != nil {
				srv.Stop()
			}
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("stream_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if srv := holder.Current(); srv != nil {
		status := srv.Status()
		srv.Stop()
		logger.Info("Final server statistics",
			slog.Int("active_sessions", status.ActiveSessions),
			slog.Duration("uptime", status.Uptime),
		)
	}

	logger.Info("Service stopped")
	return nil
}

// printBanner writes the ASCII art banner to stdout
func printBanner(cfg config.BannerConfig) {
	if cfg.Color == "" {
		figure.NewFigure(cfg.Phrase, cfg.Font, false).Print()
		return
	}
	figure.NewColorFigure(cfg.Phrase, cfg.Font, cfg.Color, false).Print()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
