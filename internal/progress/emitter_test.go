package progress

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func drain(t *testing.T, bus *Bus, taskID string) []Event {
	t.Helper()
	sub := bus.Subscribe(taskID)
	var events []Event
	for {
		ev, ok := sub.Next(50 * time.Millisecond)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func countTerminals(events []Event) (dones, errs int) {
	for _, ev := range events {
		if ev.Log == DoneSentinel {
			dones++
		}
		if ev.Error != "" {
			errs++
		}
	}
	return
}

func TestEmitterExactlyOneDone(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")

	e.StageAt("Initializing...", 0)
	e.Log("some output")
	e.Done()
	e.Done()
	e.Fail(errors.New("too late"))
	e.Cancel("")

	events := drain(t, bus, "t1")
	dones, errs := countTerminals(events)
	if dones != 1 || errs != 0 {
		t.Fatalf("got %d DONE and %d error events, want exactly 1 DONE", dones, errs)
	}
	if !events[len(events)-1].Terminal() {
		t.Error("stream does not end with the terminal event")
	}
}

func TestEmitterExactlyOneError(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")

	e.Fail(errors.New("encoding process terminated"))
	e.Done()
	e.Fail(errors.New("second failure"))

	events := drain(t, bus, "t1")
	dones, errs := countTerminals(events)
	if dones != 0 || errs != 1 {
		t.Fatalf("got %d DONE and %d error events, want exactly 1 error", dones, errs)
	}
	if events[0].Error != "encoding process terminated" {
		t.Errorf("error text = %q", events[0].Error)
	}
}

func TestEmitterDropsEventsAfterTerminal(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")

	e.Done()
	e.Log("straggler")
	e.StageAt("still going", 50)

	events := drain(t, bus, "t1")
	if len(events) != 1 {
		t.Fatalf("got %d events after terminal, want 1: %+v", len(events), events)
	}
}

func TestEmitterCancelIsDistinct(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")
	e.Cancel("Encoding stopped by user")

	events := drain(t, bus, "t1")
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	ev := events[0]
	if !ev.Terminal() || !ev.Cancelled || ev.Error == "" {
		t.Errorf("cancel event = %+v, want terminal error with Cancelled set", ev)
	}
}

func TestEmitterTerminalRaceSafe(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Done()
		}()
		go func() {
			defer wg.Done()
			e.Fail(errors.New("raced"))
		}()
	}
	wg.Wait()

	events := drain(t, bus, "t1")
	dones, errs := countTerminals(events)
	if dones+errs != 1 {
		t.Fatalf("got %d terminal events, want exactly 1", dones+errs)
	}
}

// Progress readers attached to upload bodies publish from their own
// goroutines, so stage events can race the worker's terminal call. Whatever
// interleaving wins, nothing may follow the terminal event.
func TestEmitterConcurrentStagesNeverFollowTerminal(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					e.StageAt("Uploading...", 50)
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	e.Done()
	close(stop)
	wg.Wait()

	events := drain(t, bus, "t1")
	for i, ev := range events {
		if ev.Terminal() && i != len(events)-1 {
			t.Fatalf("event %d of %d is terminal; %d events trail it",
				i+1, len(events), len(events)-1-i)
		}
	}
	if !events[len(events)-1].Terminal() {
		t.Error("stream does not end with the terminal event")
	}
}

func TestEmitterFinalURL(t *testing.T) {
	bus := NewBus()
	e := NewEmitter(bus, "t1")
	e.FinalURL("Upload complete", "https://pixeldrain.com/u/abc123")
	e.Done()

	events := drain(t, bus, "t1")
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].FinalURL != "https://pixeldrain.com/u/abc123" {
		t.Errorf("final_url = %q", events[0].FinalURL)
	}
	if events[0].Terminal() {
		t.Error("FinalURL event must not be terminal")
	}
}
