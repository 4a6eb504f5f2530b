package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/mjpeg-streamer/internal/mjpeg"
)

type probeOptions struct {
	Addr    string
	Frames  int
	Out     string
	Timeout time.Duration
	Verbose bool
}

// probeStats summarizes a probe run
type probeStats struct {
	Boundary string
	Frames   int
	Bytes    int64
	Elapsed  time.Duration
}

func (s probeStats) fps() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

func main() {
	opts := probeOptions{}

	command := &cobra.Command{
		Use:           "mjpeg-probe",
		Short:         "Connect to an MJPEG streaming server and validate its output",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			return run(opts, logger)
		},
	}
	command.Flags().StringVarP(&opts.Addr, "addr", "a", "127.0.0.1:8080", "Streaming server address")
	command.Flags().IntVarP(&opts.Frames, "frames", "n", 10, "Number of frames to read (0 reads until the stream ends)")
	command.Flags().StringVarP(&opts.Out, "out", "o", "", "Directory to save received frames into")
	command.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 15*time.Second, "Per-read timeout")
	command.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log every frame")

	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mjpeg-probe: %v\n", err)
		os.Exit(1)
	}
}

func run(opts probeOptions, logger *slog.Logger) error {
	if opts.Out != "" {
		if err := os.MkdirAll(opts.Out, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	conn, err := net.DialTimeout("tcp", opts.Addr, opts.Timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", opts.Addr, err)
	}
	defer conn.Close()

	logger.Info("Connected to streaming server",
		slog.String("addr", opts.Addr),
		slog.String("local_addr", conn.LocalAddr().String()),
	)

	stats, err := probe(conn, opts, logger)

	logger.Info("Probe finished",
		slog.String("boundary", stats.Boundary),
		slog.Int("frames", stats.Frames),
		slog.Int64("bytes", stats.Bytes),
		slog.Duration("elapsed", stats.Elapsed),
		slog.Float64("fps", stats.fps()),
	)
	return err
}

// probe reads the stream header and up to opts.Frames frames from conn
func probe(conn net.Conn, opts probeOptions, logger *slog.Logger) (probeStats, error) {
	stats := probeStats{}
	reader := mjpeg.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(opts.Timeout))
	boundary, err := reader.ReadStreamHeader()
	if err != nil {
		return stats, fmt.Errorf("invalid stream header: %w", err)
	}
	stats.Boundary = boundary

	start := time.Now()
	for opts.Frames <= 0 || stats.Frames < opts.Frames {
		conn.SetReadDeadline(time.Now().Add(opts.Timeout))
		part, err := reader.ReadFrame()
		if err != nil {
			stats.Elapsed = time.Since(start)
			if errors.Is(err, io.EOF) && opts.Frames <= 0 {
				return stats, nil
			}
			return stats, fmt.Errorf("failed after %d frames: %w", stats.Frames, err)
		}

		stats.Frames++
		stats.Bytes += int64(len(part.Payload))

		logger.Debug("Frame received",
			slog.Int("index", stats.Frames),
			slog.Int("size", len(part.Payload)),
			slog.String("content_type", part.ContentType),
		)

		if opts.Out != "" {
			name := filepath.Join(opts.Out, fmt.Sprintf("frame_%06d.jpg", stats.Frames))
			if err := os.WriteFile(name, part.Payload, 0644); err != nil {
				return stats, fmt.Errorf("failed to save frame: %w", err)
			}
		}
	}
	stats.Elapsed = time.Since(start)

	return stats, nil
}
