//go:build nogui || headless || linux

package tray

import (
	"go.uber.org/zap"
)

// Alert logs the message since no native dialog is available (stub)
func Alert(title, message string, logger *zap.SugaredLogger) {
	if logger == nil {
		return
	}
	logger.Errorw(title, "message", message)
}
