package supervisor

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Environment contract between the supervisor and its workers. The worker
// accepts connections on the inherited file descriptor instead of binding
// the port itself.
const (
	EnvListenFD    = "SLIPWAY_LISTEN_FD"
	EnvWorkerSlot  = "SLIPWAY_WORKER_SLOT"
	EnvMaxRequests = "SLIPWAY_MAX_REQUESTS"
)

// listenFDNum is where the inherited listener lands in the child: fd 3 is
// the first ExtraFiles entry after stdin/stdout/stderr.
const listenFDNum = 3

// worker is one supervised OS process. Its stdout/stderr pass straight
// through to the supervisor's own streams.
type worker struct {
	slot int
	cmd  *exec.Cmd
	done chan struct{} // closed once the process has been reaped
}

// exitStatus pairs a worker slot with how its process ended. Code 0 is a
// clean recycle, anything else is a crash.
type exitStatus struct {
	slot int
	code int
	err  error
}

// spawn starts a worker process for the given slot with the listener fd
// attached.
func (s *Supervisor) spawn(slot int, lnFile *os.File) (*worker, error) {
	argv := s.cfg.WorkerCommand
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{lnFile}
	// Each worker leads its own process group so drain signals reach any
	// children it forked, not just the direct process.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(),
		EnvListenFD+"="+strconv.Itoa(listenFDNum),
		EnvWorkerSlot+"="+strconv.Itoa(slot),
	)
	if s.cfg.MaxRequests > 0 {
		budget := s.cfg.MaxRequests
		if s.cfg.MaxRequestsJitter > 0 {
			budget += rand.Intn(s.cfg.MaxRequestsJitter)
		}
		cmd.Env = append(cmd.Env, EnvMaxRequests+"="+strconv.Itoa(budget))
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %d: %w", slot, err)
	}
	s.logger.Info("worker started", "slot", slot, "pid", cmd.Process.Pid)
	return &worker{slot: slot, cmd: cmd, done: make(chan struct{})}, nil
}

// watch reaps the worker process and reports how it ended.
func (w *worker) watch(exits chan<- exitStatus) {
	err := w.cmd.Wait()
	code := 0
	if err != nil {
		code = w.cmd.ProcessState.ExitCode()
		if code == 0 {
			code = 1
		}
	}
	close(w.done)
	exits <- exitStatus{slot: w.slot, code: code, err: err}
}

// terminate asks the worker's process group to drain.
func (w *worker) terminate() {
	w.signal(unix.SIGTERM)
}

// kill force-terminates a worker tree that outlived the grace period.
func (w *worker) kill() {
	w.signal(unix.SIGKILL)
}

func (w *worker) signal(sig unix.Signal) {
	if w.cmd.Process != nil && w.cmd.Process.Pid > 0 {
		_ = unix.Kill(-w.cmd.Process.Pid, sig)
	}
}

// crashTracker applies a RespawnPolicy to one worker slot.
type crashTracker struct {
	policy  RespawnPolicy
	crashes []time.Time
}

// record notes a crash at the given time and returns the delay before the
// next respawn, or ok=false when the slot has crashed too often inside the
// policy window and the supervisor should give up.
func (t *crashTracker) record(now time.Time) (delay time.Duration, ok bool) {
	cutoff := now.Add(-t.policy.Window.Std())
	kept := t.crashes[:0]
	for _, c := range t.crashes {
		if c.After(cutoff) {
			kept = append(kept, c)
		}
	}
	t.crashes = append(kept, now)

	if len(t.crashes) > t.policy.MaxCrashes {
		return 0, false
	}
	// Double per crash, stopping at the cap so long histories cannot
	// overflow the duration into a negative, zero-delay respawn loop.
	delay = t.policy.Backoff.Std()
	max := t.policy.MaxBackoff.Std()
	for i := 1; i < len(t.crashes) && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay, true
}

// reset clears crash history after a clean recycle.
func (t *crashTracker) reset() {
	t.crashes = t.crashes[:0]
}
