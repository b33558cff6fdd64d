//go:build windows

package port

import (
	"errors"
	"strings"
	"syscall"
)

// IsAddrInUse determines whether an error represents an address-in-use condition.
// Windows reports WSAEADDRINUSE (10048).
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}

	const WSAEADDRINUSE = syscall.Errno(10048)

	if errors.Is(err, WSAEADDRINUSE) || errors.Is(err, syscall.EADDRINUSE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "only one usage of each socket address") ||
		strings.Contains(msg, "address already in use")
}
