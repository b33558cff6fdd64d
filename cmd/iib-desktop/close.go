package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"
)

// closeRequester is the part of the shell a close sequence drives.
type closeRequester interface {
	CloseRequested(ctx context.Context)
}

// closeSequence sends at most one close request per run, whoever asks first,
// and then ends the run.
type closeSequence struct {
	target  closeRequester
	timeout time.Duration
	cancel  context.CancelFunc
	once    sync.Once
}

func newCloseSequence(target closeRequester, timeout time.Duration, cancel context.CancelFunc) *closeSequence {
	return &closeSequence{target: target, timeout: timeout, cancel: cancel}
}

// Request notifies the sidecar on the first call only. Every call cancels
// the run.
func (c *closeSequence) Request() {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.target.CloseRequested(ctx)
	})
	c.cancel()
}

// watchShutdown waits for a signal, the sidecar exiting for good, or ctx.
// Signal delivery to sigChan stops on return so that a second interrupt
// during shutdown gets Go's default handling.
func watchShutdown(ctx context.Context, sigChan chan os.Signal, sidecarDone <-chan struct{}, seq *closeSequence, logger *zap.Logger) {
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		seq.Request()
	case <-sidecarDone:
		logger.Warn("Sidecar exited, shutting down")
		seq.cancel()
	case <-ctx.Done():
	}
}
