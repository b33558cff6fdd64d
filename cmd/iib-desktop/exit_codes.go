package main

import (
	"errors"

	"iib-desktop/internal/port"
	"iib-desktop/internal/relay"
	"iib-desktop/internal/sidecar"
)

// Exit codes let packaging scripts and launchers tell startup failures apart

const (
	// ExitCodeSuccess indicates normal program termination
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodePortError indicates no local port could be bound
	ExitCodePortError = 2

	// ExitCodeSidecarError indicates the sidecar is missing or could not be spawned
	ExitCodeSidecarError = 3

	// ExitCodeConfigError indicates invalid settings
	ExitCodeConfigError = 4

	// ExitCodeLogFileError indicates the sidecar log file could not be opened or written
	ExitCodeLogFileError = 5
)

// configError marks errors caused by invalid settings
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// exitCodeFor maps an error returned by a command to a process exit code
func exitCodeFor(err error) int {
	var cfgErr *configError
	var inUse *port.PortInUseError

	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, port.ErrNoPort), errors.As(err, &inUse):
		return ExitCodePortError
	case errors.Is(err, sidecar.ErrSidecarNotFound), errors.Is(err, sidecar.ErrSpawn):
		return ExitCodeSidecarError
	case errors.As(err, &cfgErr):
		return ExitCodeConfigError
	case errors.Is(err, relay.ErrLogFile):
		return ExitCodeLogFileError
	default:
		return ExitCodeGeneralError
	}
}

// exitCodeDescription returns a human-readable description of the exit code
func exitCodeDescription(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "Success"
	case ExitCodeGeneralError:
		return "General error"
	case ExitCodePortError:
		return "No local port available"
	case ExitCodeSidecarError:
		return "Sidecar missing or failed to start"
	case ExitCodeConfigError:
		return "Configuration error"
	case ExitCodeLogFileError:
		return "Sidecar log file error"
	default:
		return "Unknown error"
	}
}
