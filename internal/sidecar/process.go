// Package sidecar launches the bundled API server and streams its output.
package sidecar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSpawn wraps failures to start an executable that was found.
var ErrSpawn = errors.New("failed to spawn sidecar")

// Stream identifies where an Event came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
	Terminated
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is one item of the sidecar's combined output stream. Terminated is
// always the last event and carries the exit status.
type Event struct {
	Stream   Stream
	Line     string
	ExitCode int
	Err      error
}

// Options describes how to launch the sidecar
type Options struct {
	Binary string
	Args   []string
	Env    []string
	Dir    string
	Logger *zap.SugaredLogger
}

// Process is a running sidecar. Its Events channel must be drained by exactly
// one consumer; it is closed after the Terminated event.
type Process struct {
	cmd    *exec.Cmd
	logger *zap.SugaredLogger

	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
}

const eventBuffer = 256

// Start spawns the sidecar with stdout and stderr captured line by line.
func Start(opts Options) (*Process, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("%w: no binary given", ErrSpawn)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	cmd := exec.Command(opts.Binary, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	configureProcAttr(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, opts.Binary, err)
	}

	p := &Process{
		cmd:    cmd,
		logger: logger,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	logger.Infow("Sidecar started",
		"binary", opts.Binary,
		"args", opts.Args,
		"pid", cmd.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go p.pump(stdoutPipe, Stdout, &readers)
	go p.pump(stderrPipe, Stderr, &readers)
	go p.wait(&readers)

	return p, nil
}

// Events returns the combined, ordered output stream.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// ExitCode returns the exit code once Done is closed, -1 if killed by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Stop asks the sidecar to terminate and kills it if it is still running after
// grace. It returns immediately if the process has already exited.
func (p *Process) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.Pid()
	p.logger.Infow("Stopping sidecar", "pid", pid)
	if err := terminate(p.cmd); err != nil {
		p.logger.Warnw("Failed to signal sidecar", "pid", pid, "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
		p.logger.Warnw("Sidecar did not stop gracefully, killing", "pid", pid)
		if err := kill(p.cmd); err != nil {
			p.logger.Errorw("Failed to kill sidecar", "pid", pid, "error", err)
		}
		<-p.done
		return fmt.Errorf("sidecar %d force killed", pid)
	}
}

// pump forwards r line by line. Lines of any length are accepted; a final
// line without a newline is still delivered.
func (p *Process) pump(r io.Reader, stream Stream, readers *sync.WaitGroup) {
	defer readers.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			p.events <- Event{Stream: stream, Line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Debugw("Sidecar output closed", "stream", stream.String(), "error", err)
			}
			return
		}
	}
}

// wait reaps the process after both pipes are drained, as exec requires.
func (p *Process) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := p.cmd.Wait()

	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.done)

	p.events <- Event{Stream: Terminated, ExitCode: code, Err: err}
	close(p.events)
}
