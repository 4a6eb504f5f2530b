// Package server implements the MJPEG streaming server (TCP acceptor and
// lifecycle), the Holder that keeps at most one live server instance, and the
// admin HTTP API used for monitoring and start/stop control.
package server
