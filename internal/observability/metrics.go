package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Shutdown request results
const (
	ShutdownOK       = "ok"
	ShutdownRejected = "rejected"
	ShutdownError    = "error"
)

// Metrics owns the shell's Prometheus registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	uptime           prometheus.Gauge
	sidecarUp        prometheus.Gauge
	sidecarLines     *prometheus.CounterVec
	shutdownRequests *prometheus.CounterVec
	bridgeRequests   *prometheus.CounterVec
	bridgeDuration   *prometheus.HistogramVec
}

// NewMetrics creates a registry with the shell metrics and the Go runtime
// collectors registered.
func NewMetrics(logger *zap.SugaredLogger) *Metrics {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	m.uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iib_uptime_seconds",
		Help: "Time since the shell started",
	})

	m.sidecarUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iib_sidecar_up",
		Help: "Whether the sidecar process is running",
	})

	m.sidecarLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iib_sidecar_log_lines_total",
			Help: "Lines relayed from the sidecar",
		},
		[]string{"stream"},
	)

	m.shutdownRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iib_shutdown_requests_total",
			Help: "Shutdown requests sent to the sidecar",
		},
		[]string{"result"}, // ok, rejected, error
	)

	m.bridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iib_bridge_requests_total",
			Help: "Requests served by the UI bridge",
		},
		[]string{"method", "path", "status"},
	)

	m.bridgeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iib_bridge_request_duration_seconds",
			Help:    "UI bridge request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.registry.MustRegister(
		m.uptime,
		m.sidecarUp,
		m.sidecarLines,
		m.shutdownRequests,
		m.bridgeRequests,
		m.bridgeDuration,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          zap.NewStdLog(m.logger.Desugar()),
	})
}

// Registry returns the Prometheus registry for custom metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetUptime sets the uptime metric
func (m *Metrics) SetUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.uptime.Set(time.Since(startTime).Seconds())
}

// SetSidecarUp records whether the sidecar is running.
func (m *Metrics) SetSidecarUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sidecarUp.Set(1)
	} else {
		m.sidecarUp.Set(0)
	}
}

// ObserveSidecarLine counts one relayed line for stream.
func (m *Metrics) ObserveSidecarLine(stream string) {
	if m == nil {
		return
	}
	m.sidecarLines.WithLabelValues(stream).Inc()
}

// ShutdownResult counts a shutdown request outcome.
func (m *Metrics) ShutdownResult(result string) {
	if m == nil {
		return
	}
	m.shutdownRequests.WithLabelValues(result).Inc()
}

// RecordBridgeRequest records a bridge request
func (m *Metrics) RecordBridgeRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.bridgeRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.bridgeDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// HTTPMiddleware returns middleware that records bridge request metrics. The
// path label is the matched chi route pattern so query strings and unknown
// paths do not blow up cardinality.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			m.RecordBridgeRequest(r.Method, path, ww.statusCode, time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
