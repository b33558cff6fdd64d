// Package shutdown asks the sidecar to exit over its local HTTP endpoint.
package shutdown

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"iib-desktop/internal/observability"
	"iib-desktop/internal/port"
)

const (
	// Path is the sidecar's shutdown endpoint.
	Path = "/infinite_image_browsing/shutdown"

	DefaultTimeout = 5 * time.Second
)

// URL returns the shutdown endpoint for a sidecar listening on port.
func URL(p int) string {
	return fmt.Sprintf("http://%s:%d%s", port.DefaultHost, p, Path)
}

// Notifier sends the one-shot shutdown request. It never returns errors:
// failures are logged and counted.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.SugaredLogger
	metrics    *observability.Metrics
}

// New creates a Notifier for the sidecar on port. A non-positive timeout
// falls back to DefaultTimeout.
func New(p int, timeout time.Duration, logger *zap.SugaredLogger, metrics *observability.Metrics) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{
		url: URL(p),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// URL returns the endpoint this notifier posts to.
func (n *Notifier) URL() string {
	return n.url
}

// Notify posts once with an empty body and waits for the answer or the
// timeout, whichever comes first.
func (n *Notifier) Notify(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, http.NoBody)
	if err != nil {
		n.logger.Errorw("Failed to build shutdown request", "url", n.url, "error", err)
		n.metrics.ShutdownResult(observability.ShutdownError)
		return
	}

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warnw("Shutdown request failed", "url", n.url, "error", err)
		n.metrics.ShutdownResult(observability.ShutdownError)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warnw("Sidecar rejected shutdown request",
			"url", n.url,
			"status", resp.StatusCode)
		n.metrics.ShutdownResult(observability.ShutdownRejected)
		return
	}

	n.logger.Infow("Sidecar acknowledged shutdown request",
		"url", n.url,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	n.metrics.ShutdownResult(observability.ShutdownOK)
}
