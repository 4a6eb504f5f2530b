// Package metrics exposes Prometheus instrumentation for the acceptor,
// viewer sessions, frame delivery and the admin HTTP API.
package metrics
