package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

var (
	// ErrBind is fatal: the declared port could not be bound. There is no
	// in-process retry; the container exits non-zero and the orchestrator
	// decides what happens next.
	ErrBind = errors.New("failed to bind port")
	// ErrCrashLoop is fatal: a worker slot exceeded its respawn budget.
	ErrCrashLoop = errors.New("worker crash loop")
)

// Supervisor owns the listening socket and the worker pool. One instance
// runs per container, as PID 1 after the launcher execs it.
type Supervisor struct {
	cfg    Config
	logger *log.Logger

	workers map[int]*worker
}

func New(cfg Config, logger *log.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		workers: make(map[int]*worker),
	}
}

// Run binds the configured address, brings the pool up and supervises it
// until a termination signal or a fatal failure. A nil return means clean
// shutdown and maps to exit status 0.
func (s *Supervisor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBind, err)
	}
	defer ln.Close()

	// Dup the socket once; every worker inherits the same fd.
	lnFile, err := ln.(*net.TCPListener).File()
	if err != nil {
		return fmt.Errorf("failed to export listener: %w", err)
	}
	defer lnFile.Close()

	exits := make(chan exitStatus, s.cfg.Workers)
	trackers := make(map[int]*crashTracker, s.cfg.Workers)
	for slot := 0; slot < s.cfg.Workers; slot++ {
		trackers[slot] = &crashTracker{policy: s.cfg.Respawn}
		w, err := s.spawn(slot, lnFile)
		if err != nil {
			s.drain()
			return err
		}
		s.workers[slot] = w
		go w.watch(exits)
	}

	s.logger.Info("serving", "bind", s.cfg.Bind, "workers", s.cfg.Workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case sig := <-sigCh:
			s.logger.Info("termination signal, draining", "signal", sig)
			return s.drain()
		case exit := <-exits:
			delete(s.workers, exit.slot)
			if exit.code == 0 {
				// Clean recycle: a worker served its request budget and
				// left. Crash history does not apply.
				trackers[exit.slot].reset()
				s.logger.Info("worker recycled", "slot", exit.slot)
				if err := s.respawn(ctx, exit.slot, lnFile, exits, 0, sigCh); err != nil {
					return err
				}
				continue
			}

			s.logger.Warn("worker crashed", "slot", exit.slot, "code", exit.code, "err", exit.err)
			delay, ok := trackers[exit.slot].record(time.Now())
			if !ok {
				s.logger.Error("respawn budget exhausted", "slot", exit.slot)
				s.drain()
				return fmt.Errorf("%w: slot %d", ErrCrashLoop, exit.slot)
			}
			if err := s.respawn(ctx, exit.slot, lnFile, exits, delay, sigCh); err != nil {
				return err
			}
		}
	}
}

// respawn restarts one worker slot after an optional backoff. A termination
// signal arriving during the backoff wins and drains instead.
func (s *Supervisor) respawn(ctx context.Context, slot int, lnFile *os.File, exits chan exitStatus, delay time.Duration, sigCh <-chan os.Signal) error {
	if delay > 0 {
		s.logger.Info("respawning after backoff", "slot", slot, "delay", delay)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case sig := <-sigCh:
			s.logger.Info("termination signal, draining", "signal", sig)
			return s.drain()
		case <-ctx.Done():
			return s.drain()
		}
	}
	w, err := s.spawn(slot, lnFile)
	if err != nil {
		s.drain()
		return err
	}
	s.workers[slot] = w
	go w.watch(exits)
	return nil
}

// drain asks every worker to finish in-flight requests, waits up to the
// grace period and force-kills stragglers. A forced kill is logged but does
// not fail the shutdown: drain is best-effort, the exit itself is not.
func (s *Supervisor) drain() error {
	if len(s.workers) == 0 {
		return nil
	}
	// Snapshot the pool and reset the field before any goroutine starts, so
	// the waiter below never shares the map with this goroutine.
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workers = make(map[int]*worker)

	for _, w := range workers {
		w.terminate()
	}

	deadline := time.After(s.cfg.GracePeriod.Std())
	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			<-w.done
		}
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all workers drained")
	case <-deadline:
		for _, w := range workers {
			select {
			case <-w.done:
			default:
				s.logger.Warn("worker exceeded grace period, killing", "slot", w.slot)
				w.kill()
			}
		}
	}
	return nil
}
