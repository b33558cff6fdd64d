package shutdown

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iib-desktop/internal/observability"
)

// startSidecarStub serves handler on a fresh loopback port and returns it.
func startSidecarStub(t *testing.T, handler http.Handler) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	return ln.Addr().(*net.TCPAddr).Port
}

func shutdownCount(result string) string {
	return "\n# HELP iib_shutdown_requests_total Shutdown requests sent to the sidecar\n" +
		"# TYPE iib_shutdown_requests_total counter\n" +
		"iib_shutdown_requests_total{result=\"" + result + "\"} 1\n"
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:43123/infinite_image_browsing/shutdown", URL(43123))
	assert.Equal(t, URL(8000), New(8000, 0, nil, nil).URL())
}

func TestNotifySendsExactlyOnePost(t *testing.T) {
	var hits atomic.Int32
	var method, path atomic.Value
	var bodyLen atomic.Int64

	p := startSidecarStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		method.Store(r.Method)
		path.Store(r.URL.Path)
		bodyLen.Store(r.ContentLength)
		w.WriteHeader(http.StatusOK)
	}))

	m := observability.NewMetrics(nil)
	New(p, time.Second, nil, m).Notify(context.Background())

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, http.MethodPost, method.Load())
	assert.Equal(t, Path, path.Load())
	assert.Equal(t, int64(0), bodyLen.Load())
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(shutdownCount(observability.ShutdownOK)), "iib_shutdown_requests_total"))
}

func TestNotifyRejectedStatusIsTolerated(t *testing.T) {
	var hits atomic.Int32
	p := startSidecarStub(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	m := observability.NewMetrics(nil)
	assert.NotPanics(t, func() {
		New(p, time.Second, nil, m).Notify(context.Background())
	})
	assert.Equal(t, int32(1), hits.Load(), "no retry after a failed attempt")
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(shutdownCount(observability.ShutdownRejected)), "iib_shutdown_requests_total"))
}

func TestNotifyUnreachableSidecar(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := observability.NewMetrics(nil)
	New(p, time.Second, nil, m).Notify(context.Background())

	assert.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(shutdownCount(observability.ShutdownError)), "iib_shutdown_requests_total"))
}

func TestNotifyIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	p := startSidecarStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	start := time.Now()
	New(p, 100*time.Millisecond, nil, nil).Notify(context.Background())

	assert.Less(t, time.Since(start), 5*time.Second)
}
