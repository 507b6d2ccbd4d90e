package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lamht/forwarder/internal/env"
	"github.com/lamht/forwarder/internal/metrics"
	"github.com/lamht/forwarder/internal/stream"
)

// stderrWaitDelay bounds how long Wait keeps copying stderr after the
// child has exited.
const stderrWaitDelay = time.Second

// Options wires the supervisor to the rest of the forwarder.
type Options struct {
	Logger *slog.Logger
	// OnLine receives every complete stdout line, in order, from a single
	// goroutine per process instance.
	OnLine func(line string)
	// Stderr receives the child's stderr verbatim. Defaults to os.Stderr.
	Stderr io.Writer
}

// Supervisor owns the tunnel process: it spawns it, streams its stdout into
// OnLine, restarts it after every exit and terminates it on shutdown.
type Supervisor struct {
	spec   Spec
	log    *slog.Logger
	onLine func(string)
	stderr io.Writer

	mu     sync.Mutex
	cur    *handle
	status Status
}

// handle is one spawned instance. A restart always creates a new handle.
type handle struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exited    bool
}

// New creates a supervisor for spec.
func New(spec Spec, opts Options) *Supervisor {
	spec = spec.withDefaults()
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	onLine := opts.OnLine
	if onLine == nil {
		onLine = func(string) {}
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Supervisor{
		spec:   spec,
		log:    l,
		onLine: onLine,
		stderr: stderr,
		status: Status{Name: spec.Name},
	}
}

// Spec returns the effective spec.
func (s *Supervisor) Spec() Spec { return s.spec }

// Run spawns the process and keeps it alive until ctx is cancelled. On
// cancellation the live process is sent SIGTERM and Run returns nil
// without waiting for it to exit.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}
		if attempt > 0 {
			s.mu.Lock()
			s.status.Restarts++
			s.mu.Unlock()
			metrics.IncRestart(s.spec.Name)
		}

		code, stopped := s.runOnce(ctx)
		if stopped {
			s.shutdown()
			return nil
		}
		s.log.Info(s.spec.Name+" exited", slog.Int("code", code))
		metrics.IncExit(s.spec.Name, code)

		t := time.NewTimer(s.spec.RestartDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.shutdown()
			return nil
		}
	}
}

// runOnce spawns one instance and blocks until it exits or ctx is done.
// It returns the exit code and whether the return was caused by ctx. A
// spawn failure counts as an exit with code -1.
func (s *Supervisor) runOnce(ctx context.Context) (int, bool) {
	s.log.Info("Starting "+s.spec.Name+" tunnel", slog.String("command", s.spec.Command), slog.Any("args", s.spec.Args))

	// #nosec G204 -- command comes from operator configuration
	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	cmd.Stdin = nil
	if len(s.spec.Env) > 0 {
		cmd.Env = env.Merge(env.OS(), s.spec.Env)
	}
	cmd.Stderr = s.stderr
	// a descendant holding stderr open must not delay exit detection
	cmd.WaitDelay = stderrWaitDelay
	configureSysProcAttr(cmd)

	// The read end is owned by the line reader, not by cmd, so Wait returns
	// when the child exits even if a descendant still holds stdout.
	stdout, w, err := os.Pipe()
	if err != nil {
		s.recordSpawnError(err)
		return -1, false
	}
	cmd.Stdout = w
	if err := cmd.Start(); err != nil {
		_ = w.Close()
		_ = stdout.Close()
		s.recordSpawnError(err)
		return -1, false
	}
	_ = w.Close()

	h := &handle{cmd: cmd, pid: cmd.Process.Pid, startedAt: time.Now()}
	s.setStarted(h)
	metrics.IncStart(s.spec.Name)

	go func() {
		defer func() { _ = stdout.Close() }()
		for line := range stream.Lines(stdout) {
			s.onLine(line)
		}
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		code := exitCode(cmd, err)
		s.setExited(h, code, err)
		return code, false
	case <-ctx.Done():
		return -1, true
	}
}

// shutdown terminates the live process, if any, and logs the shutdown.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	h := s.cur
	live := h != nil && !h.exited
	s.mu.Unlock()

	s.log.Info("Forwarder shutting down")
	if !live {
		return
	}
	if err := terminateProcess(h.pid); err != nil {
		s.log.Warn("failed to terminate "+s.spec.Name, slog.Int("pid", h.pid), slog.Any("error", err))
	}
}

// Status returns a snapshot of the supervised process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LastExitCode != nil {
		c := *st.LastExitCode
		st.LastExitCode = &c
	}
	return st
}

func (s *Supervisor) setStarted(h *handle) {
	s.mu.Lock()
	s.cur = h
	s.status.Running = true
	s.status.PID = h.pid
	s.status.StartedAt = h.startedAt
	s.status.Starts++
	s.status.LastError = ""
	s.mu.Unlock()
}

func (s *Supervisor) setExited(h *handle, code int, err error) {
	s.mu.Lock()
	h.exited = true
	if s.cur == h {
		s.status.Running = false
		s.status.PID = 0
		s.status.StoppedAt = time.Now()
		s.status.LastExitCode = &code
		s.status.LastError = errString(err)
	}
	s.mu.Unlock()
}

func (s *Supervisor) recordSpawnError(err error) {
	s.log.Error("Failed to start "+s.spec.Name, slog.String("command", s.spec.Command), slog.Any("error", err))
	code := -1
	s.mu.Lock()
	s.cur = nil
	s.status.Running = false
	s.status.PID = 0
	s.status.LastExitCode = &code
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

// exitCode maps the result of cmd.Wait to an exit code; -1 means the
// process was terminated by a signal.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
