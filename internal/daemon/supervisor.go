package daemon

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/obslog"
)

// Options configures a Supervisor.
type Options struct {
	LockPath     string        // well-known lock file path, e.g. <repo>/repo.lock
	Binary       string        // allow-listed daemon binary
	Args         []string      // argument vector, never a shell string
	StartTimeout time.Duration // overall daemon_start deadline
	StopGrace    time.Duration // SIGTERM grace period before SIGKILL

	// Ready, if set, is polled after spawning the subprocess; Start does
	// not report success until Ready returns nil or StartTimeout expires.
	// When nil, the subprocess being alive is taken as sufficient
	// evidence of readiness.
	Ready func(ctx context.Context) error
}

func (o Options) withDefaults() Options {
	if o.StartTimeout <= 0 {
		o.StartTimeout = 30 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 10 * time.Second
	}
	return o
}

// Supervisor starts, stops, and probes the local daemon with the
// lock-file discipline described above.
type Supervisor struct {
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	waitCh    chan error // fed exactly once, by monitor's cmd.Wait()
	runCancel context.CancelFunc
}

// NewSupervisor builds a Supervisor. It does not touch the filesystem or
// spawn anything until Start is called.
func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{
		opts:   opts.withDefaults(),
		logger: obslog.WithComponent("daemon-supervisor"),
	}
}

// StartResult documents every decision branch taken by Start.
type StartResult struct {
	Success          bool
	Status           string // "already_running" | "started" | "failed"
	LockFileDetected bool
	LockIsStale      bool
	LockFileRemoved  bool
	Error            string
	ErrorType        string
}

func failResult(status string, detected, stale, removed bool, err error) (*StartResult, error) {
	return &StartResult{
		Success:          false,
		Status:           status,
		LockFileDetected: detected,
		LockIsStale:      stale,
		LockFileRemoved:  removed,
		Error:            err.Error(),
		ErrorType:        string(errs.KindOf(err)),
	}, nil
}

// Start claims the lock file and spawns the daemon, optionally removing
// a stale lock first. The race-safe claim on the lock file is a hard
// link of a fully written temp file, which fails if the lock exists.
func (s *Supervisor) Start(ctx context.Context, removeStaleLock bool) (*StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockDetected := false
	lockStale := false
	lockRemoved := false

	if pid, ok, err := readLockPID(s.opts.LockPath); err != nil {
		return failResult("failed", false, false, false, errs.New(errs.ExecutionError, err))
	} else if _, statErr := os.Stat(s.opts.LockPath); statErr == nil {
		lockDetected = true
		if !ok {
			lockStale = true
		} else if isProcessAlive(pid) {
			return &StartResult{Success: true, Status: "already_running", LockFileDetected: true, LockIsStale: false}, nil
		} else {
			lockStale = true
		}
	}

	if lockStale {
		if !removeStaleLock {
			return failResult("failed", lockDetected, true, false,
				errs.Newf(errs.StaleLockFile, "lock file at %s is stale", s.opts.LockPath))
		}
		if err := removeLockIfPresent(s.opts.LockPath); err != nil {
			return failResult("failed", lockDetected, true, false, errs.New(errs.ExecutionError, err))
		}
		lockRemoved = true
	}

	if err := writeLockPID(s.opts.LockPath, os.Getpid()); err != nil {
		if os.IsExist(err) {
			// Lost the race: another daemon_start call claimed the lock
			// first. Re-read to report its outcome faithfully.
			if pid, ok, rerr := readLockPID(s.opts.LockPath); rerr == nil && ok && isProcessAlive(pid) {
				return &StartResult{Success: true, Status: "already_running", LockFileDetected: true, LockIsStale: false}, nil
			}
			return failResult("failed", true, false, lockRemoved,
				errs.Newf(errs.ExecutionError, "lost the race to claim %s", s.opts.LockPath))
		}
		return failResult("failed", lockDetected, lockStale, lockRemoved, errs.New(errs.ExecutionError, err))
	}
	preMtime := lockMtime(s.opts.LockPath)

	// readyCtx only bounds how long Start waits for the daemon to become
	// ready; it must not bound the daemon's own process lifetime, or the
	// daemon would be killed the moment Start returns (exec.CommandContext
	// kills its process when its context is done). The process itself is
	// built against context.Background() and is torn down only by Stop.
	readyCtx, cancel := context.WithTimeout(ctx, s.opts.StartTimeout)
	defer cancel()

	cmd, err := buildCommand(context.Background(), s.opts.Binary, s.opts.Args)
	if err != nil {
		_ = removeLockIfPresent(s.opts.LockPath)
		return failResult("failed", lockDetected, lockStale, lockRemoved, err)
	}

	if err := cmd.Start(); err != nil {
		_ = removeLockIfPresent(s.opts.LockPath)
		return failResult("failed", lockDetected, lockStale, lockRemoved, errs.New(errs.ExecutionError, err))
	}
	s.cmd = cmd

	if err := overwriteLockPID(s.opts.LockPath, cmd.Process.Pid); err != nil {
		return failResult("failed", lockDetected, lockStale, lockRemoved, errs.New(errs.ExecutionError, err))
	}
	if lockMtime(s.opts.LockPath).Equal(preMtime) {
		s.logger.Warn().Msg("lock file mtime did not advance after daemon spawn")
	}

	if err := s.waitForReady(readyCtx, cmd); err != nil {
		_ = s.stopLocked()
		return failResult("failed", lockDetected, lockStale, lockRemoved,
			errs.Newf(errs.DaemonStartTimeout, "daemon did not become ready within %s: %v", s.opts.StartTimeout, err))
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s.runCancel = runCancel
	s.waitCh = make(chan error, 1)
	go s.monitor(runCtx, cmd, s.waitCh)

	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("daemon started")
	return &StartResult{
		Success:          true,
		Status:           "started",
		LockFileDetected: lockDetected,
		LockIsStale:      lockStale,
		LockFileRemoved:  lockRemoved,
	}, nil
}

// waitForReady polls opts.Ready (or falls back to checking the process is
// still alive) until it succeeds or ctx expires.
func (s *Supervisor) waitForReady(ctx context.Context, cmd *exec.Cmd) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	check := func() error {
		if s.opts.Ready != nil {
			return s.opts.Ready(ctx)
		}
		if !isProcessAlive(cmd.Process.Pid) {
			return errs.Newf(errs.ExecutionError, "daemon process exited during startup")
		}
		return nil
	}

	if err := check(); err == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := check(); err == nil {
				return nil
			}
		}
	}
}

// monitor is the sole caller of cmd.Wait() for the lifetime of a spawned
// process; Stop() observes the exit through waitCh rather than calling
// Wait() a second time. It logs an unexpected exit but does not restart
// the daemon (restart policy is the caller's concern).
func (s *Supervisor) monitor(ctx context.Context, cmd *exec.Cmd, waitCh chan error) {
	err := cmd.Wait()
	waitCh <- err

	select {
	case <-ctx.Done():
		return
	default:
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("daemon process exited unexpectedly")
	}
}

// Stop implements daemon_stop: SIGTERM, then a grace period, then
// SIGKILL. Idempotent.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn().Err(err).Msg("sending termination signal failed")
	}

	// The monitor goroutine owns cmd.Wait() once it is running; observe the
	// exit through waitCh. Before the monitor starts (readiness failure
	// during Start) no one has called Wait yet, so do it here.
	done := s.waitCh
	if done == nil {
		done = make(chan error, 1)
		go func(cmd *exec.Cmd, ch chan error) { ch <- cmd.Wait() }(s.cmd, done)
	}

	select {
	case <-time.After(s.opts.StopGrace):
		s.logger.Warn().Msg("daemon did not stop gracefully, force killing")
		if err := s.cmd.Process.Kill(); err != nil {
			return errs.New(errs.ExecutionError, err)
		}
		<-done
	case <-done:
	}

	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	_ = removeLockIfPresent(s.opts.LockPath)
	s.cmd = nil
	s.waitCh = nil
	return nil
}

// IsRunning reports whether the lock file names a live process.
func (s *Supervisor) IsRunning() bool {
	pid, ok, err := readLockPID(s.opts.LockPath)
	if err != nil || !ok {
		return false
	}
	return isProcessAlive(pid)
}
