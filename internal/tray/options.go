// Package tray provides the desktop surface of the shell: a tray icon with
// a menu to open the image browser and to quit.
package tray

import (
	"fmt"

	"go.uber.org/zap"
)

// Options configures the tray application
type Options struct {
	Title string
	// BrowserURL is opened by "Open Image Browser".
	BrowserURL       string
	LaunchConfigPath string
	Port             int
	// Running reports whether the sidecar is alive. Nil means always.
	Running func() bool
	// OnQuit fires the close request before the tray goes away.
	OnQuit func()
	Logger *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

func (o Options) running() bool {
	if o.Running == nil {
		return true
	}
	return o.Running()
}

func (o Options) statusText(up bool) string {
	if !up {
		return "Image browser: stopped"
	}
	return fmt.Sprintf("Image browser: running on port %d", o.Port)
}
