package task

import (
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/mboyle85/grabdeck/internal/config"
)

// ErrNothingToStop is returned by Stop when no external process is
// registered.
var ErrNothingToStop = errors.New("no active process to stop")

// Handle is the cancellation token: a single slot holding the external
// process currently owned by a worker. Only one task runs at a time, so a
// new Set simply overwrites the previous value. All mutation is serialized;
// a worker's cleanup and an incoming stop request may race.
type Handle struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	cancelled bool
}

func NewHandle() *Handle {
	return &Handle{}
}

// Set registers the running external process. Called by a worker right after
// a successful cmd.Start.
func (h *Handle) Set(cmd *exec.Cmd) {
	h.mu.Lock()
	h.cmd = cmd
	h.mu.Unlock()
}

// Clear releases the slot. Workers must call this on every exit path,
// including after the process exits naturally.
func (h *Handle) Clear() {
	h.mu.Lock()
	h.cmd = nil
	h.mu.Unlock()
}

// Reset prepares the handle for a new task.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.cmd = nil
	h.cancelled = false
	h.mu.Unlock()
}

// WasCancelled reports whether Stop killed the current task's process. The
// worker uses it to report a Cancelled terminal instead of a generic failure.
func (h *Handle) WasCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Active reports whether a process is currently registered.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil
}

// Stop forcefully kills the registered process. External encoders have been
// observed to ignore graceful signals, so this goes straight to SIGKILL. It
// waits briefly for the owning worker to observe the exit and clear the
// slot, then clears it regardless. Returns ErrNothingToStop when the slot is
// empty.
func (h *Handle) Stop() error {
	h.mu.Lock()
	cmd := h.cmd
	if cmd == nil || cmd.Process == nil {
		h.mu.Unlock()
		return ErrNothingToStop
	}
	h.cancelled = true
	if err := cmd.Process.Kill(); err != nil {
		h.cmd = nil
		h.mu.Unlock()
		return err
	}
	h.mu.Unlock()

	deadline := time.Now().Add(config.StopKillWait)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		cleared := h.cmd == nil
		h.mu.Unlock()
		if cleared {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// The worker did not clear in time (it may be blocked on a pipe read).
	// Clear the slot anyway so a later stop reports "nothing to stop".
	h.mu.Lock()
	h.cmd = nil
	h.mu.Unlock()
	return nil
}
