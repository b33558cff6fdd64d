//go:build !nogui && !headless && !linux

package tray

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Alert shows a native error dialog. Failures to display it are only logged.
func Alert(title, message string, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := beeep.Alert(title, message, ""); err != nil {
		logger.Warnw("Failed to show alert", "title", title, "error", err)
	}
}
