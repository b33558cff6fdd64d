// Package shell wires the desktop shell together: port, sidecar, relay,
// bridge and the close-request path.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"iib-desktop/internal/bridge"
	"iib-desktop/internal/config"
	"iib-desktop/internal/observability"
	"iib-desktop/internal/port"
	"iib-desktop/internal/relay"
	"iib-desktop/internal/shutdown"
	"iib-desktop/internal/sidecar"
)

const bridgeShutdownTimeout = 5 * time.Second

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("shell already started")
	// ErrNotRunning is returned by Restart before Start or after Close.
	ErrNotRunning = errors.New("shell is not running")
)

// Options configures a Shell
type Options struct {
	Settings *config.Settings
	// Console receives the relayed sidecar output. Defaults to os.Stdout.
	Console io.Writer
	// Env overrides the sidecar environment. Nil inherits the shell's.
	Env     []string
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	Metrics *observability.Metrics
}

// launch is one sidecar run. Restart replaces it as a whole.
type launch struct {
	args      []string
	proc      *sidecar.Process
	relayDone chan struct{}
	relayErr  error
}

// Shell owns the sidecar for the lifetime of the application.
type Shell struct {
	settings *config.Settings
	opts     Options
	logger   *zap.SugaredLogger
	metrics  *observability.Metrics

	// lifecycle serializes Restart and the sidecar half of Close.
	lifecycle sync.Mutex
	relayErrs []error
	binary    string
	logFile   io.WriteCloser

	mu         sync.Mutex
	started    bool
	closing    bool
	restarting bool
	state      bridge.AppState
	notifier   *shutdown.Notifier
	cur        *launch
	app        *bridge.App
	server     *bridge.Server

	serveErr chan error
	exited   chan struct{}
	exitOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

// New creates a Shell. Nothing is started until Start.
func New(opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	settings := opts.Settings
	if settings == nil {
		settings = &config.Settings{
			LaunchConfigPath: config.LaunchConfigFileName,
			Sidecar:          config.DefaultSidecarName,
			SidecarLog:       config.DefaultSidecarLog,
			BridgeListen:     config.DefaultBridgeListen,
			ShutdownTimeout:  config.DefaultShutdownTimeout,
			StopGrace:        config.DefaultStopGrace,
		}
	}

	return &Shell{
		settings: settings,
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		serveErr: make(chan error, 1),
		exited:   make(chan struct{}),
	}
}

// Start brings the shell up: allocate a port, resolve the sidecar, open its
// log file, launch it with its relay, then serve the bridge. Any failure is
// returned before the bridge accepts a connection.
func (s *Shell) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := port.Allocate(port.DefaultHost)
	if err != nil {
		return err
	}
	s.state = bridge.AppState{Port: p}
	s.logger.Infow("Allocated sidecar port", "port", p)

	binary, err := sidecar.ResolveBinary(s.settings.Sidecar)
	if err != nil {
		return err
	}

	logFile, err := relay.OpenLogFile(s.settings.SidecarLog, s.settings.SidecarLogMaxSize)
	if err != nil {
		return err
	}
	s.binary = binary
	s.logFile = logFile

	l, err := s.spawn()
	if err != nil {
		closeQuietly(logFile)
		s.logFile = nil
		return err
	}
	s.cur = l
	s.started = true

	s.notifier = shutdown.New(p, s.settings.ShutdownTimeout, s.logger, s.metrics)
	s.app = bridge.NewApp(s, s.settings.LaunchConfigPath, s.logger)

	health := observability.NewHealthManager(s.logger,
		observability.NewProcessHealthChecker("sidecar", s.SidecarRunning),
		observability.NewPortHealthChecker("sidecar-port", port.DefaultHost, p),
	)
	s.server = bridge.NewServer(s.app, bridge.ServerOptions{
		AllowOrigin: sidecarURL(p),
		Logger:      s.logger,
		Metrics:     s.metrics,
		Health:      health,
	})
	if err := s.server.Listen(s.settings.BridgeListen); err != nil {
		s.server = nil
		if stopErr := l.proc.Stop(s.settings.StopGrace); stopErr != nil {
			s.logger.Warnw("Sidecar stop after bridge failure", "error", stopErr)
		}
		<-l.relayDone
		closeQuietly(s.logFile)
		s.logFile = nil
		s.started = false
		return err
	}

	go s.watch(l)
	go func() {
		s.serveErr <- s.server.Serve()
	}()

	return nil
}

// spawn reads the launch config and starts the sidecar on the allocated port
// with a relay into the shared log file.
func (s *Shell) spawn() (*launch, error) {
	cfg, err := config.ReadLaunchConfig(s.settings.LaunchConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debugw("No launch config, using defaults", "path", s.settings.LaunchConfigPath)
		} else {
			s.logger.Warnw("Ignoring unreadable launch config", "path", s.settings.LaunchConfigPath, "error", err)
		}
		cfg = config.LaunchConfig{}
	}

	l := &launch{
		args:      sidecar.BuildArgs(s.state.Port, cfg),
		relayDone: make(chan struct{}),
	}

	proc, err := sidecar.Start(sidecar.Options{
		Binary: s.binary,
		Args:   l.args,
		Env:    s.opts.Env,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}
	l.proc = proc
	s.metrics.SetSidecarUp(true)

	s.startRelay(l)
	return l, nil
}

func (s *Shell) startRelay(l *launch) {
	r := relay.New(relay.Config{
		Console: s.opts.Console,
		File:    s.logFile,
		Clock:   s.opts.Clock,
		Logger:  s.logger,
		Metrics: s.metrics,
	})

	events := l.proc.Events()
	go func() {
		defer close(l.relayDone)
		if err := r.Run(events); err != nil {
			l.relayErr = err
			relay.Drain(events)
		}
	}()
}

// watch reports the end of l unless a restart has replaced it.
func (s *Shell) watch(l *launch) {
	<-l.relayDone

	s.mu.Lock()
	replaced := s.restarting || s.cur != l
	s.mu.Unlock()
	if !replaced {
		s.markExited()
	}
}

func (s *Shell) markExited() {
	s.exitOnce.Do(func() { close(s.exited) })
}

// Restart stops the running sidecar and launches it again on the same port
// with the launch config re-read. The log file and the bridge stay. If the
// new sidecar cannot be spawned the shell is left without one and SidecarDone
// fires.
func (s *Shell) Restart(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.started || s.closing {
		s.mu.Unlock()
		return ErrNotRunning
	}
	old := s.cur
	s.restarting = true
	s.mu.Unlock()

	s.logger.Infow("Restarting sidecar", "port", s.state.Port)
	select {
	case <-old.proc.Done():
	default:
		s.notifier.Notify(ctx)
	}
	if err := old.proc.Stop(s.settings.StopGrace); err != nil {
		s.logger.Warnw("Sidecar stop before restart", "error", err)
	}
	<-old.relayDone
	if old.relayErr != nil {
		s.relayErrs = append(s.relayErrs, old.relayErr)
		old.relayErr = nil
	}

	next, err := s.spawn()

	s.mu.Lock()
	s.restarting = false
	if err == nil {
		s.cur = next
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorw("Failed to restart sidecar", "error", err)
		s.markExited()
		return err
	}

	go s.watch(next)
	s.logger.Infow("Sidecar restarted", "port", s.state.Port, "args", next.args)
	return nil
}

func (s *Shell) current() *launch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// CloseRequested handles one close request: a single shutdown POST to the
// sidecar, bounded by the configured timeout. It never fails.
func (s *Shell) CloseRequested(ctx context.Context) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return
	}
	s.logger.Info("Close requested, asking sidecar to shut down")
	notifier.Notify(ctx)
}

// Wait blocks until the sidecar has exited and its output has been fully
// relayed, or until ctx is done. A restart does not end the wait.
func (s *Shell) Wait(ctx context.Context) error {
	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SidecarDone is closed when the sidecar has exited for good.
func (s *Shell) SidecarDone() <-chan struct{} {
	return s.exited
}

// Close stops the bridge, reaps the sidecar and closes the log file. It is
// safe to call more than once. A relay failure is reported here.
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.closing = true
		server := s.server
		s.mu.Unlock()
		if !started {
			return
		}

		var errs []error

		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), bridgeShutdownTimeout)
			if err := server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("bridge shutdown: %w", err))
			}
			cancel()
			if err := <-s.serveErr; err != nil {
				errs = append(errs, err)
			}
		}

		s.lifecycle.Lock()
		defer s.lifecycle.Unlock()

		l := s.current()
		if err := l.proc.Stop(s.settings.StopGrace); err != nil {
			s.logger.Warnw("Sidecar stop", "error", err)
		}
		<-l.relayDone

		errs = append(errs, s.relayErrs...)
		if l.relayErr != nil {
			errs = append(errs, l.relayErr)
		}
		if s.logFile != nil {
			if err := s.logFile.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%w: close: %w", relay.ErrLogFile, err))
			}
		}

		s.metrics.SetSidecarUp(false)
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// State returns the immutable application state; valid after Start.
func (s *Shell) State() bridge.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Args returns the arguments the current sidecar was launched with.
func (s *Shell) Args() []string {
	l := s.current()
	if l == nil {
		return nil
	}
	return append([]string(nil), l.args...)
}

// App returns the front-end call surface; nil before Start.
func (s *Shell) App() *bridge.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

// SidecarURL is the origin the sidecar serves the front-end on.
func (s *Shell) SidecarURL() string {
	return sidecarURL(s.State().Port)
}

func sidecarURL(p int) string {
	return fmt.Sprintf("http://%s:%d", port.DefaultHost, p)
}

// NotifierURL is where close requests are posted.
func (s *Shell) NotifierURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier == nil {
		return ""
	}
	return s.notifier.URL()
}

// BridgeURL is the base URL of the bridge server, "" when not serving.
func (s *Shell) BridgeURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return s.server.URL()
}

// SidecarRunning reports whether the sidecar process is alive.
func (s *Shell) SidecarRunning() bool {
	l := s.current()
	if l == nil || l.proc == nil {
		return false
	}
	select {
	case <-l.proc.Done():
		return false
	default:
		return true
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
