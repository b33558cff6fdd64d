//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchShutdownReleasesSignals(t *testing.T) {
	// Keeps the test binary alive when SIGINT arrives after the watcher let go.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGINT)
	defer signal.Stop(guard)

	target := &countingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq := newCloseSequence(target, time.Second, cancel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)

	done := make(chan struct{})
	close(done)
	watchShutdown(ctx, sigChan, done, seq, zap.NewNop())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-guard:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "SIGINT was not delivered")
	}

	assert.Empty(t, sigChan, "the watcher no longer receives signals")
	assert.Zero(t, target.calls.Load())
}
