package relay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// OpenLogFile opens the sidecar log at path for appending, creating it if
// absent. An empty path returns a nil writer: the file sink is disabled. With
// maxSizeMB > 0 the file is rotated by lumberjack instead of growing forever.
func OpenLogFile(path string, maxSizeMB int) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrLogFile, dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLogFile, path, err)
	}

	if maxSizeMB <= 0 {
		return f, nil
	}

	// lumberjack opens lazily; the probe above surfaces permission problems
	// at startup instead of on the first line.
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close %s: %w", ErrLogFile, path, err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		LocalTime:  true,
	}, nil
}
