//go:build unix

package server

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// listenTCP opens a TCP listener on address with an explicit accept backlog
func listenTCP(address string, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}

	family, sockaddr, err := tcpSockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	syscall.CloseOnExec(fd)

	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := syscall.Bind(fd, sockaddr); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener duplicates the descriptor
	f := os.NewFile(uintptr(fd), "tcp-listener")
	defer f.Close()

	return net.FileListener(f)
}

func tcpSockaddr(addr *net.TCPAddr) (int, syscall.Sockaddr, error) {
	if addr.IP == nil {
		return syscall.AF_INET, &syscall.SockaddrInet4{Port: addr.Port}, nil
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &syscall.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return syscall.AF_INET, sa, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &syscall.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return syscall.AF_INET6, sa, nil
	}
	return 0, nil, fmt.Errorf("unsupported address %s", addr)
}
