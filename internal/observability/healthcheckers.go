package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ProcessHealthChecker reports whether a supervised process is still running
type ProcessHealthChecker struct {
	name    string
	running func() bool
}

// NewProcessHealthChecker creates a checker around running.
func NewProcessHealthChecker(name string, running func() bool) *ProcessHealthChecker {
	return &ProcessHealthChecker{name: name, running: running}
}

// Name returns the name of the health checker
func (phc *ProcessHealthChecker) Name() string {
	return phc.name
}

// HealthCheck fails once the process has exited
func (phc *ProcessHealthChecker) HealthCheck(_ context.Context) error {
	if phc.running == nil || !phc.running() {
		return errors.New("process is not running")
	}
	return nil
}

// PortHealthChecker reports whether something accepts TCP connections on a
// loopback port.
type PortHealthChecker struct {
	name string
	addr string
}

// NewPortHealthChecker creates a checker for host:port.
func NewPortHealthChecker(name, host string, port int) *PortHealthChecker {
	return &PortHealthChecker{
		name: name,
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

// Name returns the name of the health checker
func (p *PortHealthChecker) Name() string {
	return p.name
}

// HealthCheck dials the port once.
func (p *PortHealthChecker) HealthCheck(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.addr, err)
	}
	return conn.Close()
}
