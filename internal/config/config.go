package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/mjpeg-streamer/internal/source"
)

// Frame source kinds
const (
	SourcePattern     = "pattern"
	SourcePlaceholder = "placeholder"
	SourceDirectory   = "directory"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Stream  StreamConfig  `yaml:"stream" json:"stream"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Banner  BannerConfig  `yaml:"banner" json:"banner"`
}

// ServerConfig contains streaming listener configuration
type ServerConfig struct {
	BindAddress string `yaml:"bind_address" json:"bind_address"`
	Port        int    `yaml:"port" json:"port"`
	SendTimeout int    `yaml:"send_timeout" json:"send_timeout"` // seconds
}

// StreamConfig contains frame source and pacing configuration
type StreamConfig struct {
	FPS        int    `yaml:"fps" json:"fps"`
	Source     string `yaml:"source" json:"source"`
	Resolution string `yaml:"resolution" json:"resolution"`
	Quality    int    `yaml:"quality" json:"quality"`     // JPEG quality 1-100
	Directory  string `yaml:"directory" json:"directory"` // used by the directory source
}

// HTTPConfig contains admin HTTP API configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`
	PProf   bool   `yaml:"pprof" json:"pprof"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// BannerConfig controls the ASCII banner printed at startup
type BannerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Phrase  string `yaml:"phrase" json:"phrase"`
	Font    string `yaml:"font" json:"font"`
	Color   string `yaml:"color" json:"color"`
}

// Default returns a configuration that streams a test pattern on port 8080
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0",
			Port:        8080,
			SendTimeout: 10,
		},
		Stream: StreamConfig{
			FPS:        30,
			Source:     SourcePattern,
			Resolution: string(source.Resolution720p),
			Quality:    75,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Banner: BannerConfig{
			Enabled: true,
			Phrase:  "mjpeg",
		},
	}
}

// Load reads and parses the configuration file.
// Keys missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.SendTimeout < 0 {
		return fmt.Errorf("send_timeout cannot be negative, got %d", s.SendTimeout)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.FPS < 1 || s.FPS > 120 {
		return fmt.Errorf("fps must be between 1 and 120, got %d", s.FPS)
	}

	switch s.Source {
	case SourcePattern, SourcePlaceholder:
	case SourceDirectory:
		if s.Directory == "" {
			return fmt.Errorf("directory cannot be empty when source is %q", SourceDirectory)
		}
	default:
		return fmt.Errorf("source must be one of [pattern, placeholder, directory], got '%s'", s.Source)
	}

	if _, err := source.ParseResolution(s.Resolution); err != nil {
		return err
	}

	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", s.Quality)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path
	return nil
}

// GetSendTimeoutDuration returns the viewer write timeout as a time.Duration
func (s *ServerConfig) GetSendTimeoutDuration() time.Duration {
	return time.Duration(s.SendTimeout) * time.Second
}

// GetFrameInterval returns the pause between frames for the configured FPS
func (s *StreamConfig) GetFrameInterval() time.Duration {
	return FrameInterval(s.FPS)
}

// GetResolution returns the parsed resolution; call Validate first
func (s *StreamConfig) GetResolution() source.Resolution {
	res, _ := source.ParseResolution(s.Resolution)
	return res
}

// FrameInterval converts a frames-per-second selection into a pacing interval.
// Non-positive values yield one second.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(fps)
}

// NewSource builds the frame source selected by the stream configuration
func (s *StreamConfig) NewSource() (source.Source, error) {
	switch s.Source {
	case SourcePattern:
		pattern, err := source.NewPattern(s.GetResolution(), s.Quality)
		if err != nil {
			return nil, err
		}
		return pattern, nil
	case SourcePlaceholder:
		placeholder, err := source.NewPlaceholder(s.GetResolution())
		if err != nil {
			return nil, err
		}
		return placeholder, nil
	case SourceDirectory:
		dir := source.NewDirectory(s.Directory)
		// A missing or empty directory is rejected before any viewer connects
		cursor, err := dir.Open()
		if err != nil {
			return nil, err
		}
		cursor.Close()
		return dir, nil
	default:
		return nil, fmt.Errorf("unknown frame source %q", s.Source)
	}
}
