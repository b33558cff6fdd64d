package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"iib-desktop/internal/shutdown"
)

type notifierTarget struct {
	n *shutdown.Notifier
}

func (t notifierTarget) CloseRequested(ctx context.Context) {
	t.n.Notify(ctx)
}

type countingTarget struct {
	calls atomic.Int32
}

func (c *countingTarget) CloseRequested(_ context.Context) {
	c.calls.Add(1)
}

func TestCloseSequenceSendsOneShutdownPost(t *testing.T) {
	var posts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(shutdown.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq := newCloseSequence(notifierTarget{n: shutdown.New(port, 2*time.Second, nil, nil)}, 2*time.Second, cancel)

	// A signal and the tray Quit item racing each other.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq.Request()
		}()
	}
	wg.Wait()
	seq.Request()

	assert.Equal(t, int32(1), posts.Load())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWatchShutdownOnSignal(t *testing.T) {
	target := &countingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq := newCloseSequence(target, time.Second, cancel)

	sigChan := make(chan os.Signal, 1)
	sigChan <- syscall.SIGTERM

	watchShutdown(ctx, sigChan, make(chan struct{}), seq, zap.NewNop())

	assert.Equal(t, int32(1), target.calls.Load())
	assert.Error(t, ctx.Err())

	// Quit after the signal does not notify again.
	seq.Request()
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestWatchShutdownOnSidecarExit(t *testing.T) {
	target := &countingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq := newCloseSequence(target, time.Second, cancel)

	done := make(chan struct{})
	close(done)

	watchShutdown(ctx, make(chan os.Signal, 1), done, seq, zap.NewNop())

	assert.Zero(t, target.calls.Load(), "an exited sidecar is not asked to shut down")
	assert.Error(t, ctx.Err())
}

func TestWatchShutdownReturnsOnCancel(t *testing.T) {
	target := &countingTarget{}
	ctx, cancel := context.WithCancel(context.Background())
	seq := newCloseSequence(target, time.Second, cancel)
	cancel()

	finished := make(chan struct{})
	go func() {
		watchShutdown(ctx, make(chan os.Signal, 1), make(chan struct{}), seq, zap.NewNop())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "watchShutdown did not return after cancel")
	}
	assert.Zero(t, target.calls.Load())
}
