// Package port hands out loopback ports for the sidecar and binds the bridge listener.
package port

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultHost is the loopback interface every shell port lives on.
const DefaultHost = "127.0.0.1"

// ErrNoPort is returned when no local port could be bound at all.
var ErrNoPort = errors.New("no free local port")

// PortInUseError indicates that the requested listen address is already occupied.
type PortInUseError struct {
	Address string
	Err     error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %s is already in use", e.Address)
}

func (e *PortInUseError) Unwrap() error {
	return e.Err
}

// Allocate asks the OS for a free port on host and releases it immediately so
// another process can bind it. Nothing is ever accepted on the probe socket.
// The port may be taken again before the caller uses it; that race is accepted.
func Allocate(host string) (int, error) {
	if host == "" {
		host = DefaultHost
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("%w: bind %s: %w", ErrNoPort, host, err)
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		return 0, fmt.Errorf("%w: listener reported %s", ErrNoPort, ln.Addr())
	}

	return addr.Port, nil
}

// Listen binds addr and keeps the listener open. An occupied address is
// reported as *PortInUseError.
func Listen(addr string) (net.Listener, error) {
	if _, _, err := SplitListenAddress(addr); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if IsAddrInUse(err) {
			return nil, &PortInUseError{Address: addr, Err: err}
		}
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// SplitListenAddress parses a listen string into host and port components.
func SplitListenAddress(addr string) (string, int, error) {
	if addr == "" {
		return "", 0, fmt.Errorf("listen address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	if p < 0 || p > 65535 {
		return "", 0, fmt.Errorf("port %d is out of range", p)
	}

	return host, p, nil
}
