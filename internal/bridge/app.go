// Package bridge exposes the shell's calls to the web front-end.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"iib-desktop/internal/config"
)

// AppState is created once at startup and only read afterwards. A relaunch
// of the sidecar keeps it.
type AppState struct {
	Port int
}

// AppConf is the serialisable view of AppState handed to the front-end.
type AppConf struct {
	Port int `json:"port"`
}

// Launcher controls the sidecar on behalf of the front-end.
type Launcher interface {
	State() AppState
	CloseRequested(ctx context.Context)
	Restart(ctx context.Context) error
}

// App implements the front-end calls.
type App struct {
	launcher         Launcher
	launchConfigPath string
	logger           *zap.SugaredLogger
}

// NewApp creates an App for launcher. launchConfigPath is where
// SaveLaunchConfig writes.
func NewApp(launcher Launcher, launchConfigPath string, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		launcher:         launcher,
		launchConfigPath: launchConfigPath,
		logger:           logger,
	}
}

// State returns the shared application state.
func (a *App) State() AppState {
	if a.launcher == nil {
		return AppState{}
	}
	return a.launcher.State()
}

// Greet returns a greeting for name
func (a *App) Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

// GetAppConf returns the port the sidecar was started on.
func (a *App) GetAppConf() AppConf {
	return AppConf{Port: a.State().Port}
}

// ShutdownAPIServer asks the sidecar to exit and returns once the request
// has completed or failed.
func (a *App) ShutdownAPIServer(ctx context.Context) {
	if a.launcher == nil {
		return
	}
	a.logger.Info("Shutdown of API server requested by front-end")
	a.launcher.CloseRequested(ctx)
}

// Relaunch restarts the sidecar on the same port so that a saved launch
// config takes effect.
func (a *App) Relaunch(ctx context.Context) error {
	if a.launcher == nil {
		return errors.New("no sidecar to relaunch")
	}
	a.logger.Info("Relaunch of API server requested by front-end")
	return a.launcher.Restart(ctx)
}

// SaveLaunchConfig persists cfg for the next sidecar launch.
func (a *App) SaveLaunchConfig(cfg config.LaunchConfig) error {
	if err := config.SaveLaunchConfig(a.launchConfigPath, cfg); err != nil {
		return err
	}
	a.logger.Infow("Launch config saved",
		"path", a.launchConfigPath,
		"sdwebui_dir", cfg.SDWebUIDir)
	return nil
}
