package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"iib-desktop/internal/config"
	"iib-desktop/internal/observability"
	"iib-desktop/internal/port"
)

const maxLaunchConfigBody = 1 << 20

// ServerOptions configures the bridge HTTP server
type ServerOptions struct {
	// AllowOrigin is sent as Access-Control-Allow-Origin; usually the
	// sidecar origin that serves the front-end.
	AllowOrigin string
	Logger      *zap.SugaredLogger
	Metrics     *observability.Metrics
	Health      *observability.HealthManager
}

// Server provides the bridge endpoints with a chi router
type Server struct {
	app     *App
	opts    ServerOptions
	logger  *zap.SugaredLogger
	router  *chi.Mux
	httpSrv *http.Server

	listener net.Listener
}

// NewServer creates the bridge server for app
func NewServer(app *App, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		app:    app,
		opts:   opts,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Desugar()),
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(s.opts.Metrics.HTTPMiddleware())
	}
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.httpLoggingMiddleware())
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.corsMiddleware())

	if s.opts.Health != nil {
		s.router.Get("/healthz", s.opts.Health.HealthzHandler())
	} else {
		s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/greet", s.handleGreet)
		r.Get("/conf", s.handleGetConf)
		r.Post("/shutdown", s.handleShutdown)
		r.Post("/relaunch", s.handleRelaunch)
		r.Put("/launch-conf", s.handleSaveLaunchConf)
	})
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	origin := s.opts.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) httpLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			s.logger.Debugw("Bridge request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}

func (s *Server) handleGreet(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	s.writeJSON(w, http.StatusOK, s.app.Greet(name))
}

func (s *Server) handleGetConf(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.GetAppConf())
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.app.ShutdownAPIServer(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelaunch(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Relaunch(r.Context()); err != nil {
		s.logger.Errorw("Failed to relaunch sidecar", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.app.GetAppConf())
}

func (s *Server) handleSaveLaunchConf(w http.ResponseWriter, r *http.Request) {
	var cfg config.LaunchConfig
	body := io.LimitReader(r.Body, maxLaunchConfigBody)
	if err := json.NewDecoder(body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid launch config: %v", err))
		return
	}

	if err := s.app.SaveLaunchConfig(cfg); err != nil {
		s.logger.Errorw("Failed to save launch config", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// Listen binds addr. It must be called before Serve.
func (s *Server) Listen(addr string) error {
	ln, err := port.Listen(addr)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	s.listener = ln
	s.logger.Infow("Bridge listening", "url", s.URL())
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the bridge.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.Addr()
}

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("bridge: Serve called before Listen")
	}
	if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
