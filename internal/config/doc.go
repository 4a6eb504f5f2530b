// Package config provides YAML configuration loading and validation for the
// MJPEG streaming service: listener, frame source, admin API, logging and banner.
package config
