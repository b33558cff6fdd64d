package sidecar

import (
	"strconv"

	"iib-desktop/internal/config"
)

// Flags understood by the image browser API server.
const (
	FlagPort           = "--port"
	FlagAllowCORS      = "--allow_cors"
	FlagEnableShutdown = "--enable_shutdown"
)

// BuildArgs returns the sidecar command line: the fixed port, CORS and
// shutdown flags followed by whatever the launch config contributes.
func BuildArgs(port int, launch config.LaunchConfig) []string {
	args := []string{FlagPort, strconv.Itoa(port), FlagAllowCORS, FlagEnableShutdown}
	return append(args, launch.SidecarArgs()...)
}
