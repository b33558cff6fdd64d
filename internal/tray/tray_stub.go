//go:build nogui || headless || linux

package tray

import (
	"context"

	"go.uber.org/zap"
)

// App represents the system tray application (stub version)
type App struct {
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a new tray application (stub version)
func New(opts Options) *App {
	return &App{
		opts:   opts,
		logger: opts.logger(),
	}
}

// Run blocks until ctx is cancelled (stub version - no tray is shown)
func (a *App) Run(ctx context.Context) error {
	a.logger.Infow("Tray functionality disabled (nogui/headless build)",
		"status", a.opts.statusText(a.opts.running()),
		"url", a.opts.BrowserURL)
	<-ctx.Done()
	return ctx.Err()
}
