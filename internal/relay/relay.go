// Package relay copies sidecar output to the console and the sidecar log file.
package relay

import (
	"errors"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"iib-desktop/internal/observability"
	"iib-desktop/internal/sidecar"
)

// TimestampLayout renders local time as [YYYY-MM-DD HH:MM:SS].
const TimestampLayout = "[2006-01-02 15:04:05]"

// Line tags
const (
	TagInfo  = "INFO"
	TagError = "ERR"
)

// ErrLogFile marks failures to open or write the sidecar log file.
var ErrLogFile = errors.New("sidecar log file")

// Tag returns the origin tag for a stream.
func Tag(stream sidecar.Stream) string {
	if stream == sidecar.Stderr {
		return TagError
	}
	return TagInfo
}

// Config wires a Relay
type Config struct {
	// Console receives every line first. Defaults to io.Discard.
	Console io.Writer
	// File receives the same lines after the console. Nil disables it.
	File    io.Writer
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	Metrics *observability.Metrics
}

// Relay drains one sidecar event stream.
type Relay struct {
	console io.Writer
	file    io.Writer
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// New creates a Relay
func New(cfg Config) *Relay {
	r := &Relay{
		console: cfg.Console,
		file:    cfg.File,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if r.console == nil {
		r.console = io.Discard
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = zap.NewNop().Sugar()
	}
	return r
}

// Format composes "<TAG> [timestamp] <line>" using local time.
func (r *Relay) Format(ev sidecar.Event) string {
	return fmt.Sprintf("%s %s %s", Tag(ev.Stream), r.clock.Now().Local().Format(TimestampLayout), ev.Line)
}

// Run consumes events in arrival order until the channel closes. Console
// write errors are ignored; a file write error stops the relay and is
// returned wrapped in ErrLogFile. The caller owns draining whatever is left.
func (r *Relay) Run(events <-chan sidecar.Event) error {
	for ev := range events {
		if ev.Stream == sidecar.Terminated {
			r.terminated(ev)
			continue
		}

		text := r.Format(ev)
		_, _ = io.WriteString(r.console, text+"\n")
		r.metrics.ObserveSidecarLine(ev.Stream.String())

		if r.file == nil {
			continue
		}
		if _, err := io.WriteString(r.file, text+"\n"); err != nil {
			r.logger.Errorw("Failed to write sidecar log, relay stopped", "error", err)
			return fmt.Errorf("%w: write: %w", ErrLogFile, err)
		}
	}
	return nil
}

func (r *Relay) terminated(ev sidecar.Event) {
	r.metrics.SetSidecarUp(false)
	if ev.Err != nil {
		r.logger.Warnw("Sidecar exited", "exit_code", ev.ExitCode, "error", ev.Err)
		return
	}
	r.logger.Infow("Sidecar exited", "exit_code", ev.ExitCode)
}

// Drain discards the rest of events so the sidecar never blocks on a full pipe.
func Drain(events <-chan sidecar.Event) {
	for range events {
	}
}
