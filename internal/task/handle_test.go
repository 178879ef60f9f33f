package task

import (
	"os/exec"
	"testing"
	"time"
)

func TestStopWithNothingRegistered(t *testing.T) {
	h := NewHandle()
	if err := h.Stop(); err != ErrNothingToStop {
		t.Fatalf("Stop on empty handle = %v, want ErrNothingToStop", err)
	}
}

func TestStopKillsRegisteredProcess(t *testing.T) {
	h := NewHandle()

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	h.Set(cmd)

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		h.Clear()
		waitErr <- err
	}()

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-waitErr:
		if err == nil {
			t.Error("killed process reported exit code 0")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}

	if !h.WasCancelled() {
		t.Error("WasCancelled = false after Stop")
	}

	// The slot was cleared, so a second stop has nothing to act on.
	if err := h.Stop(); err != ErrNothingToStop {
		t.Errorf("second Stop = %v, want ErrNothingToStop", err)
	}
}

func TestStopClearsSlotEvenIfWorkerStalls(t *testing.T) {
	h := NewHandle()

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	// No goroutine waits on the process, simulating a worker stuck on a
	// pipe read that never clears the handle.
	h.Set(cmd)

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.Active() {
		t.Error("handle still active after Stop")
	}
	cmd.Wait()
}

func TestResetClearsCancelledFlag(t *testing.T) {
	h := NewHandle()
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	h.Set(cmd)
	h.Stop()
	cmd.Wait()

	h.Reset()
	if h.WasCancelled() {
		t.Error("WasCancelled survived Reset")
	}
	if h.Active() {
		t.Error("Active after Reset")
	}
}
