//go:build !windows

package port

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsAddrInUse determines whether an error represents an address-in-use condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if IsAddrInUse(opErr.Err) {
			return true
		}
	}

	// Final fallback for platform-specific error strings.
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
