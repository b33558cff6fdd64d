//go:build !nogui && !headless && !linux

package tray

import (
	"context"
	_ "embed"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"fyne.io/systray"
	"go.uber.org/zap"
)

//go:embed icon-mono-32.png
var iconData []byte

const statusRefreshInterval = 5 * time.Second

// App represents the system tray application
type App struct {
	opts   Options
	logger *zap.SugaredLogger

	statusItem *systray.MenuItem
	lastUp     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new tray application
func New(opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		opts:   opts,
		logger: opts.logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run shows the tray icon and blocks until Quit is chosen or ctx is
// cancelled. It must be called from the main goroutine.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting system tray application")

	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("Context cancelled, quitting systray")
			systray.Quit()
		case <-a.ctx.Done():
		}
	}()

	systray.Run(a.onReady, a.onExit)

	return ctx.Err()
}

func (a *App) onReady() {
	systray.SetTitle("iib")
	systray.SetTooltip(a.opts.Title)

	if len(iconData) > 0 {
		if runtime.GOOS == "darwin" {
			systray.SetTemplateIcon(iconData, iconData)
		} else {
			systray.SetIcon(iconData)
		}
	} else {
		a.logger.Error("Icon data is empty - icon not embedded correctly")
	}

	a.statusItem = systray.AddMenuItem(a.opts.statusText(true), "Sidecar status")
	a.statusItem.Disable()

	systray.AddSeparator()

	mOpen := systray.AddMenuItem("Open Image Browser", "Open the image browser in the default browser")
	mConfig := systray.AddMenuItem("Open Launch Config", "Open "+a.opts.LaunchConfigPath)

	systray.AddSeparator()

	mQuit := systray.AddMenuItem("Quit", "Shut down the image browser and quit")

	go func() {
		for {
			select {
			case <-mOpen.ClickedCh:
				go a.open(a.opts.BrowserURL)
			case <-mConfig.ClickedCh:
				go a.open(a.opts.LaunchConfigPath)
			case <-mQuit.ClickedCh:
				a.logger.Info("Quit selected from tray menu")
				if a.opts.OnQuit != nil {
					a.opts.OnQuit()
				}
				systray.Quit()
				return
			case <-a.ctx.Done():
				return
			}
		}
	}()

	a.lastUp = true
	go a.watchStatus()
}

func (a *App) watchStatus() {
	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			up := a.opts.running()
			if up == a.lastUp {
				continue
			}
			a.lastUp = up
			a.statusItem.SetTitle(a.opts.statusText(up))
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) onExit() {
	a.logger.Info("System tray exiting")
	a.cancel()
}

func (a *App) open(target string) {
	if target == "" {
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		a.logger.Errorw("Unsupported OS for opening", "target", target)
		return
	}

	if err := cmd.Run(); err != nil {
		a.logger.Errorw("Failed to open", "target", target, "error", fmt.Sprint(err))
	}
}
