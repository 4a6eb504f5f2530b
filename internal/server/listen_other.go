//go:build !unix

package server

import "net"

// listenTCP opens a TCP listener on address. The accept backlog is left to
// the operating system on this platform.
func listenTCP(address string, backlog int) (net.Listener, error) {
	return net.Listen("tcp", address)
}
